package notifier

import (
	"context"
	"strings"

	"github.com/beaconhq/beacon/internal/models"
)

// WebhookType is the type key of the generic webhook sender.
const WebhookType = "webhook"

type webhookSettings struct {
	Endpoint string `mapstructure:"endpoint"`
}

// WebhookSender posts the event payload to an arbitrary endpoint.
type WebhookSender struct {
	settings models.Settings
	delivery httpDelivery
}

// WebhookDefinition returns the webhook sender definition.
func WebhookDefinition() Definition {
	return Definition{
		Type:     WebhookType,
		Label:    "Webhook",
		Defaults: models.Settings{"endpoint": ""},
		Schema: []Field{
			{Name: "endpoint", Label: "Endpoint", Kind: "url", Required: true, Description: "The endpoint URL to POST the event data to."},
		},
		Validate: validateWebhook,
		Submit:   trimStrings,
		New:      newWebhookSender,
	}
}

func validateWebhook(s models.Settings) ValidationErrors {
	var errs ValidationErrors
	endpoint := strings.TrimSpace(s.String("endpoint"))
	if endpoint == "" {
		return append(errs, ValidationError{Field: "endpoint", Message: "is required"})
	}
	if err := checkHTTPURL(endpoint); err != nil {
		errs = append(errs, ValidationError{Field: "endpoint", Message: err.Error()})
	}
	return errs
}

func newWebhookSender(settings models.Settings, deps Deps) (Sender, error) {
	var cfg webhookSettings
	decodeErr := decodeSettings(settings, &cfg)
	return &WebhookSender{
		settings: settings.Clone(),
		delivery: httpDelivery{
			endpoint: strings.TrimSpace(cfg.Endpoint),
			invalid:  settingsError(validateWebhook(settings), decodeErr),
			logger:   deps.log(),
		},
	}, nil
}

// Type returns "webhook".
func (w *WebhookSender) Type() string {
	return WebhookType
}

// Settings returns the sender's settings.
func (w *WebhookSender) Settings() models.Settings {
	return w.settings.Clone()
}

// Send queues the event payload for delivery.
func (w *WebhookSender) Send(ctx context.Context, event *models.Event) error {
	return w.delivery.post(ctx, NewEventPayload(event))
}
