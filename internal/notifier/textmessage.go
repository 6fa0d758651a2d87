package notifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/outbound"
)

// TextMessageType is the type key of the SMS sender.
const TextMessageType = "text_message"

// RecipientHeader carries the destination number to the SMS gateway.
const RecipientHeader = "X-Beacon-Recipient"

var phoneNumberPattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

type textMessageSettings struct {
	Number   string `mapstructure:"number"`
	Endpoint string `mapstructure:"endpoint"`
}

// TextMessageSender posts the event payload to an SMS gateway.
type TextMessageSender struct {
	settings models.Settings
	number   string
	delivery httpDelivery
}

// TextMessageDefinition returns the SMS sender definition. gateway is the
// default gateway endpoint.
func TextMessageDefinition(gateway string) Definition {
	return Definition{
		Type:  TextMessageType,
		Label: "Text message",
		Defaults: models.Settings{
			"number":   "",
			"endpoint": gateway,
		},
		Schema: []Field{
			{Name: "number", Label: "Phone number", Kind: "tel", Required: true, Description: "The phone number to send a text message to."},
			{Name: "endpoint", Label: "Gateway URL", Kind: "url", Required: true, Description: "The SMS gateway endpoint."},
		},
		Validate: validateTextMessage,
		Submit:   submitTextMessage,
		New:      newTextMessageSender,
	}
}

// normalizeNumber strips common separators from a phone number.
func normalizeNumber(n string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(n))
}

func validateTextMessage(s models.Settings) ValidationErrors {
	var errs ValidationErrors

	number := normalizeNumber(s.String("number"))
	switch {
	case number == "":
		errs = append(errs, ValidationError{Field: "number", Message: "is required"})
	case !phoneNumberPattern.MatchString(number):
		errs = append(errs, ValidationError{Field: "number", Message: "must be 7 to 15 digits with an optional leading +"})
	}

	endpoint := strings.TrimSpace(s.String("endpoint"))
	if endpoint == "" {
		errs = append(errs, ValidationError{Field: "endpoint", Message: "is required"})
	} else if err := checkHTTPURL(endpoint); err != nil {
		errs = append(errs, ValidationError{Field: "endpoint", Message: err.Error()})
	}
	return errs
}

func submitTextMessage(s models.Settings) models.Settings {
	out := trimStrings(s)
	out["number"] = normalizeNumber(out.String("number"))
	return out
}

func newTextMessageSender(settings models.Settings, deps Deps) (Sender, error) {
	var cfg textMessageSettings
	decodeErr := decodeSettings(settings, &cfg)
	return &TextMessageSender{
		settings: settings.Clone(),
		number:   normalizeNumber(cfg.Number),
		delivery: httpDelivery{
			endpoint: strings.TrimSpace(cfg.Endpoint),
			invalid:  settingsError(validateTextMessage(settings), decodeErr),
			logger:   deps.log(),
		},
	}, nil
}

// Type returns "text_message".
func (t *TextMessageSender) Type() string {
	return TextMessageType
}

// Settings returns the sender's settings.
func (t *TextMessageSender) Settings() models.Settings {
	return t.settings.Clone()
}

// Send queues the event payload for the gateway. The body is the same
// payload the webhook sender posts; the recipient travels in a header.
func (t *TextMessageSender) Send(ctx context.Context, event *models.Event) error {
	return t.delivery.post(ctx, NewEventPayload(event), outbound.WithHeader(RecipientHeader, t.number))
}
