package httpapi

import (
	"context"
	"net/http"
)

// Option configures NewMux.
type Option func(*muxOptions)

type muxOptions struct {
	corsOrigins []string
	base        context.Context
}

// WithCORS enables CORS for the given origins. Only GET is allowed since the
// server is read-only.
func WithCORS(origins ...string) Option {
	return func(o *muxOptions) { o.corsOrigins = append(o.corsOrigins, origins...) }
}

// WithBaseContext ties handler work to ctx as well as to the request, so
// store lookups stop when the process shuts down.
func WithBaseContext(ctx context.Context) Option {
	return func(o *muxOptions) {
		if ctx != nil {
			o.base = ctx
		}
	}
}

// requestContext returns a context canceled when either the request or the
// base context is done. The cancel func must be called when the handler ends.
func (o *muxOptions) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(o.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
