package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beaconhq/beacon/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `a.id, a.name, a.channel_id, a.type, a.settings_json, a.event_types_json,
	a.enabled, a.created_at, a.updated_at`

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.AlertRule) error {
	defer observe("alert_create")()

	eventTypes, err := marshalEventTypes(alert.EventTypes)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (id, name, channel_id, type, settings_json, event_types_json,
			enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		alert.ID, alert.Name, alert.ChannelID, alert.Type, settingsOrEmpty(alert.Settings), eventTypes,
		boolToInt(alert.Enabled), alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if err := replaceSeverities(ctx, tx, alert.ID, alert.Severities); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	defer observe("alert_get")()

	alerts, err := r.query(ctx, `SELECT `+alertColumns+` FROM alerts a WHERE a.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return alerts[0], nil
}

func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.AlertRule) error {
	defer observe("alert_update")()

	eventTypes, err := marshalEventTypes(alert.EventTypes)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE alerts SET name = ?, type = ?, settings_json = ?, event_types_json = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		alert.Name, alert.Type, settingsOrEmpty(alert.Settings), eventTypes,
		boolToInt(alert.Enabled), alert.UpdatedAt, alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", alert.ID)
	}

	if err := replaceSeverities(ctx, tx, alert.ID, alert.Severities); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string) error {
	defer observe("alert_delete")()

	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

func (r *sqliteAlertRepo) ListByChannel(ctx context.Context, channelID string) ([]*models.AlertRule, error) {
	defer observe("alert_list")()

	return r.query(ctx, `SELECT `+alertColumns+` FROM alerts a WHERE a.channel_id = ? ORDER BY a.name`, channelID)
}

func (r *sqliteAlertRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	defer observe("alert_set_enabled")()

	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set alert enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// FindEnabledRules returns the channel's enabled alerts whose severity set
// contains severity. Result order is not guaranteed.
func (r *sqliteAlertRepo) FindEnabledRules(ctx context.Context, channelID string, severity models.Severity) ([]*models.AlertRule, error) {
	defer observe("alert_find_enabled")()

	return r.query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts a
		JOIN alert_severities s ON s.alert_id = a.id
		WHERE a.channel_id = ? AND a.enabled = 1 AND s.severity = ?
	`, channelID, severity)
}

func (r *sqliteAlertRepo) query(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	var alerts []*models.AlertRule
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	rows.Close()

	if err := r.loadSeverities(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// loadSeverities fills in the severity set of each alert, least severe first.
func (r *sqliteAlertRepo) loadSeverities(ctx context.Context, alerts []*models.AlertRule) error {
	if len(alerts) == 0 {
		return nil
	}

	byID := make(map[string]*models.AlertRule, len(alerts))
	args := make([]any, 0, len(alerts))
	for _, a := range alerts {
		byID[a.ID] = a
		args = append(args, a.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := r.db.QueryContext(ctx,
		`SELECT alert_id, severity FROM alert_severities WHERE alert_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("query alert severities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var sev models.Severity
		if err := rows.Scan(&id, &sev); err != nil {
			return fmt.Errorf("scan alert severity: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.Severities = append(a.Severities, sev)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate alert severities: %w", err)
	}

	for _, a := range alerts {
		sort.Slice(a.Severities, func(i, j int) bool {
			return a.Severities[i].Rank() < a.Severities[j].Rank()
		})
	}
	return nil
}

func replaceSeverities(ctx context.Context, tx *sql.Tx, alertID string, severities []models.Severity) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM alert_severities WHERE alert_id = ?", alertID); err != nil {
		return fmt.Errorf("clear alert severities: %w", err)
	}
	for _, sev := range severities {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO alert_severities (alert_id, severity) VALUES (?, ?)",
			alertID, sev,
		)
		if err != nil {
			return fmt.Errorf("insert alert severity: %w", err)
		}
	}
	return nil
}

func scanAlert(s scanner) (*models.AlertRule, error) {
	alert := &models.AlertRule{}
	var eventTypesJSON string
	var enabled int

	err := s.Scan(
		&alert.ID, &alert.Name, &alert.ChannelID, &alert.Type, &alert.Settings, &eventTypesJSON,
		&enabled, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	alert.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(eventTypesJSON), &alert.EventTypes); err != nil {
		return nil, fmt.Errorf("unmarshal event types: %w", err)
	}
	return alert, nil
}

func marshalEventTypes(types []string) (string, error) {
	if types == nil {
		types = []string{}
	}
	b, err := json.Marshal(types)
	if err != nil {
		return "", fmt.Errorf("marshal event types: %w", err)
	}
	return string(b), nil
}

func settingsOrEmpty(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
