package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beaconhq/beacon/internal/models"
)

type sqliteChannelRepo struct {
	db *sql.DB
}

const channelColumns = `id, name, url, description, created_at, updated_at`

func (r *sqliteChannelRepo) Create(ctx context.Context, ch *models.Channel) error {
	defer observe("channel_create")()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (`+channelColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, nullString(ch.URL), nullString(ch.Description), ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	defer observe("channel_get")()

	row := r.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

func (r *sqliteChannelRepo) Update(ctx context.Context, ch *models.Channel) error {
	defer observe("channel_update")()

	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET name = ?, url = ?, description = ?, updated_at = ? WHERE id = ?`,
		ch.Name, nullString(ch.URL), nullString(ch.Description), ch.UpdatedAt, ch.ID,
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("channel not found: %s", ch.ID)
	}
	return nil
}

func (r *sqliteChannelRepo) Delete(ctx context.Context, id string) error {
	defer observe("channel_delete")()

	result, err := r.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("channel not found: %s", id)
	}
	return nil
}

func (r *sqliteChannelRepo) List(ctx context.Context) ([]*models.Channel, error) {
	defer observe("channel_list")()

	rows, err := r.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanChannel(s scanner) (*models.Channel, error) {
	ch := &models.Channel{}
	var chURL, description sql.NullString
	err := s.Scan(&ch.ID, &ch.Name, &chURL, &description, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.URL = chURL.String
	ch.Description = description.String
	return ch, nil
}
