package notifier

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/beaconhq/beacon/internal/models"
)

// SlackType is the type key of the Slack sender.
const SlackType = "slack"

// SlackMessageLength is the maximum number of message characters sent to Slack.
const SlackMessageLength = 500

const slackEndpointPrefix = "https://hooks.slack.com"

type slackSettings struct {
	Endpoint string `mapstructure:"endpoint"`
	Channel  string `mapstructure:"channel"`
	Username string `mapstructure:"username"`
}

// SlackSender posts an attachment message to a Slack incoming webhook.
type SlackSender struct {
	settings models.Settings
	config   slackSettings
	site     Site
	delivery httpDelivery
}

// SlackDefinition returns the Slack sender definition.
func SlackDefinition() Definition {
	return Definition{
		Type:  SlackType,
		Label: "Slack",
		Defaults: models.Settings{
			"endpoint": "",
			"channel":  "",
			"username": "beacon",
		},
		Schema: []Field{
			{Name: "endpoint", Label: "Webhook URL", Kind: "url", Required: true, Description: "The Slack incoming webhook URL."},
			{Name: "channel", Label: "Channel", Kind: "text", Required: true, Description: "The channel or user to post to, starting with # or @."},
			{Name: "username", Label: "Username", Kind: "text", Required: true, Description: "The name messages are posted as."},
		},
		Validate: validateSlack,
		Submit:   trimStrings,
		New:      newSlackSender,
	}
}

func validateSlack(s models.Settings) ValidationErrors {
	var errs ValidationErrors

	endpoint := strings.TrimSpace(s.String("endpoint"))
	switch {
	case endpoint == "":
		errs = append(errs, ValidationError{Field: "endpoint", Message: "is required"})
	case !strings.HasPrefix(endpoint, slackEndpointPrefix):
		errs = append(errs, ValidationError{Field: "endpoint", Message: "must begin with " + slackEndpointPrefix})
	}

	channel := strings.TrimSpace(s.String("channel"))
	switch {
	case channel == "":
		errs = append(errs, ValidationError{Field: "channel", Message: "is required"})
	case !strings.HasPrefix(channel, "#") && !strings.HasPrefix(channel, "@"):
		errs = append(errs, ValidationError{Field: "channel", Message: "must start with # or @"})
	}

	if strings.TrimSpace(s.String("username")) == "" {
		errs = append(errs, ValidationError{Field: "username", Message: "is required"})
	}
	return errs
}

func newSlackSender(settings models.Settings, deps Deps) (Sender, error) {
	var cfg slackSettings
	decodeErr := decodeSettings(settings, &cfg)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	return &SlackSender{
		settings: settings.Clone(),
		config:   cfg,
		site:     deps.Site,
		delivery: httpDelivery{
			endpoint: cfg.Endpoint,
			invalid:  settingsError(validateSlack(settings), decodeErr),
			logger:   deps.log(),
		},
	}, nil
}

// Type returns "slack".
func (s *SlackSender) Type() string {
	return SlackType
}

// Settings returns the sender's settings.
func (s *SlackSender) Settings() models.Settings {
	return s.settings.Clone()
}

// Send queues the Slack message for delivery.
func (s *SlackSender) Send(ctx context.Context, event *models.Event) error {
	return s.delivery.post(ctx, s.buildPayload(event))
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Channel     string            `json:"channel"`
	Username    string            `json:"username"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Pretext    string       `json:"pretext"`
	AuthorName string       `json:"author_name"`
	AuthorLink string       `json:"author_link"`
	Title      string       `json:"title"`
	TitleLink  string       `json:"title_link"`
	Fields     []slackField `json:"fields"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackSender) buildPayload(event *models.Event) slackMessage {
	return slackMessage{
		Channel:  s.config.Channel,
		Username: s.config.Username,
		Attachments: []slackAttachment{
			{
				Pretext:    fmt.Sprintf("A notification was dispatched from %s", s.site.Name),
				AuthorName: s.site.Name,
				AuthorLink: s.site.BaseURL,
				Title:      event.Label(),
				TitleLink:  s.site.EventURL(event.ID),
				Fields: []slackField{
					{Title: "Channel", Value: event.Channel.Name, Short: true},
					{Title: "Type", Value: event.Type, Short: true},
					{Title: "Severity", Value: string(event.Severity), Short: true},
					{Title: "User", Value: event.User, Short: true},
					{Title: "Message", Value: truncate(event.Message, SlackMessageLength), Short: false},
				},
			},
		},
	}
}

// truncate cuts s to max characters and appends an ellipsis when it was longer.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
