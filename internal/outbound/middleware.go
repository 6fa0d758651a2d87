package outbound

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Middleware attaches a fresh queue to every request. When the handler
// returns, the queue is flushed by d after the response has been written.
// With a nil drainer the flush runs inline before the middleware returns.
// All queues created by the middleware share one HTTP client.
func Middleware(opts Options, d *Drainer) func(http.Handler) http.Handler {
	if opts.Client == nil {
		opts.Client = NewClient()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			qopts := opts
			if qopts.OnSchedule == nil {
				logger := opts.Logger
				qopts.OnSchedule = func() {
					logger.Debug("outbound flush scheduled",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
				}
			}
			q := New(qopts)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), q)))

			ctx := context.WithoutCancel(r.Context())
			if d == nil {
				q.Flush(ctx)
				return
			}
			d.Go(ctx, q)
		})
	}
}
