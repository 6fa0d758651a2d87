package models

// DayCount is the number of events created on one UTC day (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ChannelStats summarises a channel's recent activity.
type ChannelStats struct {
	ChannelID        string             `json:"channel_id"`
	Days             int                `json:"days"`
	TotalEvents      int64              `json:"total_events"`
	EventsPerDay     []DayCount         `json:"events_per_day"`
	EventsBySeverity map[Severity]int64 `json:"events_by_severity"`
	Alerts           int                `json:"alerts"`
	EnabledAlerts    int                `json:"enabled_alerts"`
}
