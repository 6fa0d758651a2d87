package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/outbound"
)

// httpDelivery posts JSON payloads through the outbound queue attached to the
// caller's context. Webhook, Slack and text message senders share it.
type httpDelivery struct {
	endpoint string
	invalid  error
	logger   *zap.Logger
}

// post encodes payload and enqueues a POST to the endpoint. The request is
// issued when the current unit of work flushes its queue.
func (d httpDelivery) post(ctx context.Context, payload any, opts ...outbound.RequestOption) error {
	if d.invalid != nil {
		return d.invalid
	}
	q, ok := outbound.FromContext(ctx)
	if !ok {
		return outbound.ErrNoQueue
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts = append([]outbound.RequestOption{outbound.WithJSONBody(body)}, opts...)
	q.Enqueue(http.MethodPost, d.endpoint, opts...)

	d.logger.Debug("notification queued", zap.String("endpoint", d.endpoint))
	return nil
}
