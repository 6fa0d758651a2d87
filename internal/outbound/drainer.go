package outbound

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Drainer flushes queues in the background once their unit of work has
// finished, so callers do not wait on notification delivery.
// Wait blocks until every started flush has settled.
type Drainer struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewDrainer creates a drainer.
func NewDrainer(logger *zap.Logger) *Drainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drainer{logger: logger}
}

// Go flushes q on a new goroutine. Empty queues are skipped.
func (d *Drainer) Go(ctx context.Context, q *Queue) {
	if q == nil || q.Len() == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("outbound flush panicked", zap.Any("panic", p))
			}
		}()
		q.Flush(ctx)
	}()
}

// Wait blocks until all flushes started by Go have returned or ctx is done.
func (d *Drainer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
