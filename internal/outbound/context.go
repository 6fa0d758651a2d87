package outbound

import (
	"context"
	"errors"
)

type queueKey struct{}

// ErrNoQueue is returned when a context carries no outbound queue.
var ErrNoQueue = errors.New("no outbound queue in context")

// NewContext returns a copy of ctx that carries q.
func NewContext(ctx context.Context, q *Queue) context.Context {
	return context.WithValue(ctx, queueKey{}, q)
}

// FromContext returns the queue stored in ctx, if any.
func FromContext(ctx context.Context) (*Queue, bool) {
	q, ok := ctx.Value(queueKey{}).(*Queue)
	return q, ok && q != nil
}

// Do runs fn with a fresh queue attached to ctx, then flushes the queue
// before returning. It is the unit-of-work boundary for callers outside
// the HTTP middleware, such as CLI commands and tests.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) (FlushResult, error) {
	q := New(opts)
	err := fn(NewContext(ctx, q))
	return q.Flush(context.WithoutCancel(ctx)), err
}
