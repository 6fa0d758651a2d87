package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Settings is one sender type's settings payload.
type Settings map[string]any

// Clone returns a shallow copy of s. A nil receiver yields an empty map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// String returns the value stored under key as a string, or "" if absent.
func (s Settings) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// AlertRule is a configured notification trigger scoped to a channel.
type AlertRule struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ChannelID  string     `json:"channel_id"`
	Enabled    bool       `json:"enabled"`
	Type       string     `json:"type"`     // sender type key
	Settings   string     `json:"-"`        // JSON-encoded settings keyed by sender type
	Severities []Severity `json:"severity"` // never empty
	EventTypes []string   `json:"event_types,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewAlertRule creates an enabled rule with a fresh identifier.
func NewAlertRule(name, channelID, senderType string, severities ...Severity) *AlertRule {
	now := time.Now()
	return &AlertRule{
		ID:         uuid.New().String(),
		Name:       name,
		ChannelID:  channelID,
		Enabled:    true,
		Type:       senderType,
		Severities: severities,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MatchesSeverity reports whether sev is a member of the rule's severity set.
func (a *AlertRule) MatchesSeverity(sev Severity) bool {
	for _, s := range a.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

// MaxAlertNameLength bounds AlertRule.Name.
const MaxAlertNameLength = 255

// Validate checks the rule invariants.
func (a *AlertRule) Validate() error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > MaxAlertNameLength {
		return fmt.Errorf("name must be %d characters or less", MaxAlertNameLength)
	}
	if a.ChannelID == "" {
		return errors.New("channel is required")
	}
	if a.Type == "" {
		return errors.New("type is required")
	}
	if len(a.Severities) == 0 {
		return errors.New("at least one severity is required")
	}
	for _, s := range a.Severities {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
		}
	}
	for _, t := range a.EventTypes {
		if strings.TrimSpace(t) == "" {
			return errors.New("event type filters must not be blank")
		}
		if len(t) > MaxEventTypeLength {
			return fmt.Errorf("event type filter must be %d characters or less", MaxEventTypeLength)
		}
	}
	return nil
}
