package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// unroutedLabel stands in for paths no route matched, so scanners probing
// random URLs cannot grow the label set.
const unroutedLabel = "unrouted"

var httpLabels = []string{"route", "method", "code"}

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batchd",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Status server requests by route, method and response code.",
	}, httpLabels)

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "batchd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Status server request latency.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, httpLabels)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "batchd",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Status server requests currently being served.",
	})
)

func init() {
	prometheus.MustRegister(httpRequests, httpLatency, httpInflight)
}

// wrap returns a response writer that records status and size. A handler
// that never calls WriteHeader reports 200.
func wrap(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// MetricsMiddleware counts and times requests, labeled by chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInflight.Inc()
		defer httpInflight.Dec()
		ww := wrap(w, r)
		start := time.Now()
		next.ServeHTTP(ww, r)
		// chi fills in the pattern while routing, so read it afterwards
		labels := prometheus.Labels{
			"route":  routeLabel(r),
			"method": r.Method,
			"code":   strconv.Itoa(statusOf(ww)),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unroutedLabel
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return unroutedLabel
}
