package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/metrics"
	"github.com/beaconhq/beacon/internal/models"
)

// EmailType is the type key of the email sender.
const EmailType = "email"

// ErrNoMailTransport is returned by Send when no mail transport is configured.
var ErrNoMailTransport = errors.New("mail transport not configured")

type emailSettings struct {
	Email string `mapstructure:"email"`
}

// EmailSender emails a summary of the event to one address.
type EmailSender struct {
	settings  models.Settings
	to        string
	site      Site
	transport MailTransport
	invalid   error
	logger    *zap.Logger
}

// EmailDefinition returns the email sender definition.
func EmailDefinition() Definition {
	return Definition{
		Type:     EmailType,
		Label:    "Email",
		Defaults: models.Settings{"email": ""},
		Schema: []Field{
			{Name: "email", Label: "Email address", Kind: "email", Required: true, Description: "The email address to send alerts to."},
		},
		Validate: validateEmail,
		Submit:   trimStrings,
		New:      newEmailSender,
	}
}

func validateEmail(s models.Settings) ValidationErrors {
	addr := strings.TrimSpace(s.String("email"))
	if addr == "" {
		return ValidationErrors{{Field: "email", Message: "is required"}}
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return ValidationErrors{{Field: "email", Message: "must be a valid email address"}}
	}
	return nil
}

func newEmailSender(settings models.Settings, deps Deps) (Sender, error) {
	var cfg emailSettings
	decodeErr := decodeSettings(settings, &cfg)
	return &EmailSender{
		settings:  settings.Clone(),
		to:        strings.TrimSpace(cfg.Email),
		site:      deps.Site,
		transport: deps.Mail,
		invalid:   settingsError(validateEmail(settings), decodeErr),
		logger:    deps.log(),
	}, nil
}

// Type returns "email".
func (e *EmailSender) Type() string {
	return EmailType
}

// Settings returns the sender's settings.
func (e *EmailSender) Settings() models.Settings {
	return e.settings.Clone()
}

// Send hands the rendered message to the mail transport. Transport failures
// are logged and counted, not returned.
func (e *EmailSender) Send(ctx context.Context, event *models.Event) error {
	if e.invalid != nil {
		return e.invalid
	}
	if e.transport == nil {
		return ErrNoMailTransport
	}
	subject, lines := e.buildMessage(event)

	if err := e.transport.Send(ctx, e.to, subject, lines); err != nil {
		metrics.MailSentTotal.WithLabelValues("error").Inc()
		e.logger.Warn("alert email delivery failed",
			zap.String("to", e.to),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return nil
	}
	metrics.MailSentTotal.WithLabelValues("success").Inc()
	return nil
}

// buildMessage returns the subject and body lines for an event.
func (e *EmailSender) buildMessage(event *models.Event) (string, []string) {
	subject := fmt.Sprintf("[%s] %s event in %s", e.site.Name, event.Severity.Label(), event.Channel.Name)

	lines := []string{
		fmt.Sprintf("A %s event was logged in the %s channel.", event.Severity, event.Channel.Name),
		"",
		"Type: " + event.Type,
		"Severity: " + event.Severity.Label(),
		"User: " + event.User,
		"Created: " + event.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
	if event.URL != "" {
		lines = append(lines, "URL: "+event.URL)
	}
	lines = append(lines,
		"",
		event.Message,
		"",
		"View the event: "+e.site.EventURL(event.ID),
	)
	return subject, lines
}
