package models

import "time"

// DispatchStatus describes what happened to one rule during dispatch.
type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
	DispatchSkipped DispatchStatus = "skipped"
)

// AlertHistory records one rule being dispatched for one event.
type AlertHistory struct {
	ID        string         `json:"id"`
	AlertID   string         `json:"alert_id"`
	AlertName string         `json:"alert_name"`
	EventID   string         `json:"event_id"`
	ChannelID string         `json:"channel_id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Status    DispatchStatus `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
