package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"batchd/internal/httpapi"
)

// startServer serves the status API on addr in the background and returns a
// func that shuts it down gracefully.
func startServer(ctx context.Context, addr string, svc httpapi.Service, log zerolog.Logger, opts ...httpapi.Option) func() {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	opts = append(opts, httpapi.WithBaseContext(ctx))
	srv := &http.Server{Addr: addr, Handler: httpapi.NewMux(svc, opts...), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server error")
		}
	}()
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
	}
}
