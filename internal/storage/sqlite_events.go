package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beaconhq/beacon/internal/models"
)

type sqliteEventRepo struct {
	db *sql.DB
}

const eventSelect = `
	SELECT e.id, e.channel_id, c.name, e.type, e.severity, e.user, e.url, e.message,
		e.created_at, e.expire_at
	FROM events e JOIN channels c ON c.id = e.channel_id
`

func (r *sqliteEventRepo) Create(ctx context.Context, ev *models.Event) error {
	defer observe("event_create")()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, channel_id, type, severity, user, url, message, created_at, expire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.Channel.ID, ev.Type, ev.Severity, ev.User, nullString(ev.URL), ev.Message,
		ev.CreatedAt.UTC(), ev.ExpireAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *sqliteEventRepo) GetByID(ctx context.Context, id string) (*models.Event, error) {
	defer observe("event_get")()

	ev, err := scanEvent(r.db.QueryRowContext(ctx, eventSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (r *sqliteEventRepo) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*models.Event, int64, error) {
	defer observe("event_list")()

	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE channel_id = ?", channelID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		eventSelect+` WHERE e.channel_id = ? ORDER BY e.created_at DESC LIMIT ? OFFSET ?`,
		channelID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

func (r *sqliteEventRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observe("event_delete_expired")()

	result, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE expire_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteEventRepo) CountByDay(ctx context.Context, channelID string, since time.Time) (map[string]int64, error) {
	defer observe("event_count_by_day")()

	// created_at is stored in UTC, so its first ten characters are the day.
	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		FROM events
		WHERE channel_id = ? AND created_at >= ?
		GROUP BY day
	`, channelID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count events by day: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func (r *sqliteEventRepo) CountBySeverity(ctx context.Context, channelID string) (map[models.Severity]int64, error) {
	defer observe("event_count_by_severity")()

	rows, err := r.db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM events WHERE channel_id = ? GROUP BY severity",
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("count events by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]int64)
	for rows.Next() {
		var sev models.Severity
		var n int64
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

func scanEvent(s scanner) (*models.Event, error) {
	ev := &models.Event{}
	var evURL sql.NullString
	err := s.Scan(
		&ev.ID, &ev.Channel.ID, &ev.Channel.Name, &ev.Type, &ev.Severity, &ev.User, &evURL,
		&ev.Message, &ev.CreatedAt, &ev.ExpireAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.URL = evURL.String
	return ev, nil
}
