// Package models defines the domain models for Beacon.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Severity is an event severity. Levels are ordered from least to most severe.
type Severity string

const (
	SeverityDebug     Severity = "debug"
	SeverityInfo      Severity = "info"
	SeverityNotice    Severity = "notice"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityCritical  Severity = "critical"
	SeverityAlert     Severity = "alert"
	SeverityEmergency Severity = "emergency"
)

var severityOrder = []Severity{
	SeverityDebug,
	SeverityInfo,
	SeverityNotice,
	SeverityWarning,
	SeverityError,
	SeverityCritical,
	SeverityAlert,
	SeverityEmergency,
}

// AllSeverities returns every severity, least severe first.
func AllSeverities() []Severity {
	out := make([]Severity, len(severityOrder))
	copy(out, severityOrder)
	return out
}

// ErrInvalidSeverity is returned when a severity string is not recognised.
var ErrInvalidSeverity = errors.New("invalid severity")

// ParseSeverity converts a string to a Severity. Matching is case-insensitive.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Rank returns the position of s in the severity order, or -1 if unknown.
func (s Severity) Rank() int {
	for i, sev := range severityOrder {
		if sev == s {
			return i
		}
	}
	return -1
}

// Label returns the display form of the severity.
func (s Severity) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Field limits for events.
const (
	MaxEventTypeLength = 64
	MaxEventUserLength = 64
	MaxMessageLength   = 5000

	// DefaultEventLifetime is how long an event is kept when no expiry is given.
	DefaultEventLifetime = 14 * 24 * time.Hour
)

// Channel groups events and alert rules, typically one per monitored application.
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewChannel creates a channel with a fresh identifier.
func NewChannel(name string) *Channel {
	now := time.Now()
	return &Channel{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Event is a single logged occurrence within a channel.
// Events are immutable once dispatched.
type Event struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	User      string    `json:"user"`
	URL       string    `json:"url,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpireAt  time.Time `json:"expire_at"`
}

// NewEvent creates an event in the given channel with default timestamps.
func NewEvent(channel Channel, eventType string, severity Severity, message string) *Event {
	now := time.Now().UTC().Truncate(time.Second)
	return &Event{
		ID:        uuid.New().String(),
		Channel:   channel,
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		CreatedAt: now,
		ExpireAt:  now.Add(DefaultEventLifetime),
	}
}

// Label returns the human-readable title of the event.
func (e *Event) Label() string {
	return "Event " + e.ID
}

// Expired reports whether the event has passed its expiry time.
func (e *Event) Expired(now time.Time) bool {
	return !e.ExpireAt.IsZero() && !now.Before(e.ExpireAt)
}

// Validate checks event fields against the storage limits.
func (e *Event) Validate() error {
	if e.Channel.ID == "" {
		return errors.New("channel is required")
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, e.Severity)
	}
	if utf8.RuneCountInString(e.Type) > MaxEventTypeLength {
		return fmt.Errorf("type must be %d characters or less", MaxEventTypeLength)
	}
	if utf8.RuneCountInString(e.User) > MaxEventUserLength {
		return fmt.Errorf("user must be %d characters or less", MaxEventUserLength)
	}
	if utf8.RuneCountInString(e.Message) > MaxMessageLength {
		return fmt.Errorf("message must be %d characters or less", MaxMessageLength)
	}
	if !e.ExpireAt.IsZero() && e.ExpireAt.Before(e.CreatedAt) {
		return errors.New("expire must not be before created")
	}
	return nil
}
