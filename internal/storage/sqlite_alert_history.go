package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beaconhq/beacon/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

const historyColumns = `id, alert_id, alert_name, event_id, channel_id, type, severity, status, detail, created_at`

func (r *sqliteAlertHistoryRepo) Create(ctx context.Context, h *models.AlertHistory) error {
	defer observe("alert_history_create")()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_history (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.AlertID, h.AlertName, h.EventID, h.ChannelID, h.Type, h.Severity, h.Status,
		nullString(h.Detail), h.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create alert history: %w", err)
	}
	return nil
}

// RecordDispatch stores a dispatch outcome.
func (r *sqliteAlertHistoryRepo) RecordDispatch(ctx context.Context, h *models.AlertHistory) error {
	return r.Create(ctx, h)
}

func (r *sqliteAlertHistoryRepo) ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	defer observe("alert_history_list")()

	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history WHERE alert_id = ?", alertID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history by alert: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM alert_history WHERE alert_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		alertID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history by alert: %w", err)
	}
	defer rows.Close()

	histories, err := scanHistories(rows)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

func (r *sqliteAlertHistoryRepo) ListByEvent(ctx context.Context, eventID string) ([]*models.AlertHistory, error) {
	defer observe("alert_history_list")()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM alert_history WHERE event_id = ? ORDER BY created_at`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query alert history by event: %w", err)
	}
	defer rows.Close()

	return scanHistories(rows)
}

func (r *sqliteAlertHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	defer observe("alert_history_delete")()

	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func scanHistories(rows *sql.Rows) ([]*models.AlertHistory, error) {
	var histories []*models.AlertHistory
	for rows.Next() {
		h := &models.AlertHistory{}
		var detail sql.NullString
		err := rows.Scan(
			&h.ID, &h.AlertID, &h.AlertName, &h.EventID, &h.ChannelID, &h.Type,
			&h.Severity, &h.Status, &detail, &h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		h.Detail = detail.String
		histories = append(histories, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert history: %w", err)
	}
	return histories, nil
}
