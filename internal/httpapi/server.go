// Package httpapi serves a read-only view of a running batch: live run
// status, stored results, available models, and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"batchd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	// Status reports the current run; ok is false before a run starts.
	Status() (st types.RunStatus, ok bool)
	ListModels() []types.Model
	ListRuns(ctx context.Context) ([]string, error)
	LoadRun(ctx context.Context, id string) (types.RunResult, error)
}

// NewMux builds the status server routes.
func NewMux(svc Service, opts ...Option) http.Handler {
	o := &muxOptions{base: context.Background()}
	for _, opt := range opts {
		opt(o)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(o.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: o.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Log-Level"},
			MaxAge:         300,
		}))
	}

	// @Summary  Current run status
	// @Produce  json
	// @Success  200 {object} types.RunStatus
	// @Failure  503 {object} types.ErrorResponse
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st, ok := svc.Status()
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "no run in progress")
			return
		}
		writeJSON(w, st)
	})

	// @Summary  One record of the current run
	// @Produce  json
	// @Param    id path int true "record id"
	// @Success  200 {object} types.RecordStatus
	// @Router   /status/records/{id} [get]
	r.Get("/status/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "record id must be an integer")
			return
		}
		st, ok := svc.Status()
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "no run in progress")
			return
		}
		for _, rec := range st.Records {
			if rec.ID == id {
				writeJSON(w, rec)
				return
			}
		}
		writeJSONError(w, http.StatusNotFound, "record not found")
	})

	// @Summary  Stored run ids
	// @Produce  json
	// @Success  200 {array} string
	// @Router   /runs [get]
	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := o.requestContext(r)
		defer cancel()
		ids, err := svc.ListRuns(ctx)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, map[string][]string{"runs": ids})
	})

	// @Summary  Stored run result
	// @Produce  json
	// @Param    id path string true "run id"
	// @Success  200 {object} types.RunResult
	// @Failure  404 {object} types.ErrorResponse
	// @Router   /runs/{id} [get]
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := o.requestContext(r)
		defer cancel()
		res, err := svc.LoadRun(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, res)
	})

	// @Summary  Models available to the llama generator
	// @Produce  json
	// @Success  200 {object} types.ModelsResponse
	// @Router   /models [get]
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := svc.Status(); ok {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}
