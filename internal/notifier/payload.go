package notifier

import (
	"strings"

	"github.com/beaconhq/beacon/internal/models"
)

// EventPayload is the JSON body posted by webhook and text message senders.
type EventPayload struct {
	Channel     string  `json:"channel"`
	ChannelName string  `json:"channelName"`
	Event       string  `json:"event"`
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	User        string  `json:"user"`
	URL         *string `json:"url"`
	Created     int64   `json:"created"`
	Expire      int64   `json:"expire"`
	Message     string  `json:"message"`
}

// NewEventPayload builds the payload for an event. A missing URL encodes as null.
func NewEventPayload(event *models.Event) EventPayload {
	p := EventPayload{
		Channel:     event.Channel.ID,
		ChannelName: event.Channel.Name,
		Event:       event.ID,
		Type:        event.Type,
		Severity:    string(event.Severity),
		User:        event.User,
		Created:     event.CreatedAt.Unix(),
		Expire:      event.ExpireAt.Unix(),
		Message:     event.Message,
	}
	if event.URL != "" {
		url := event.URL
		p.URL = &url
	}
	return p
}

// EventURL returns the absolute link to an event page on the site.
func (s Site) EventURL(eventID string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/event/" + eventID
}
