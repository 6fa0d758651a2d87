// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/beaconhq/beacon/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Repository accessors
	Channels() ChannelRepository
	Events() EventRepository
	Alerts() AlertRepository
	AlertHistory() AlertHistoryRepository
}

// ChannelRepository defines operations for channel management.
// Get methods return nil, nil when the record does not exist.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	Update(ctx context.Context, channel *models.Channel) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Channel, error)
}

// EventRepository defines operations for event storage.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*models.Event, int64, error)
	// DeleteExpired removes events whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// CountByDay returns event counts keyed by UTC creation day (YYYY-MM-DD)
	// for events created at or after since. Days without events are absent.
	CountByDay(ctx context.Context, channelID string, since time.Time) (map[string]int64, error)
	// CountBySeverity returns the channel's event counts keyed by severity.
	CountBySeverity(ctx context.Context, channelID string) (map[models.Severity]int64, error)
}

// AlertRepository defines operations for alert rule management.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	Update(ctx context.Context, alert *models.AlertRule) error
	Delete(ctx context.Context, id string) error
	ListByChannel(ctx context.Context, channelID string) ([]*models.AlertRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// FindEnabledRules returns the enabled rules of a channel whose
	// severity set contains severity.
	FindEnabledRules(ctx context.Context, channelID string, severity models.Severity) ([]*models.AlertRule, error)
}

// AlertHistoryRepository defines operations for dispatch history.
type AlertHistoryRepository interface {
	Create(ctx context.Context, history *models.AlertHistory) error
	RecordDispatch(ctx context.Context, history *models.AlertHistory) error
	ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistory, int64, error)
	ListByEvent(ctx context.Context, eventID string) ([]*models.AlertHistory, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
