package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS channels (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				url TEXT,
				description TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				channel_id TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT '',
				severity TEXT NOT NULL,
				user TEXT NOT NULL DEFAULT '',
				url TEXT,
				message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				expire_at DATETIME NOT NULL,
				FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_events_channel ON events(channel_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_events_expire ON events(expire_at);

			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				type TEXT NOT NULL,
				settings_json TEXT NOT NULL DEFAULT '{}',
				event_types_json TEXT NOT NULL DEFAULT '[]',
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_alerts_channel ON alerts(channel_id, enabled);

			-- One row per severity in an alert's severity set
			CREATE TABLE IF NOT EXISTS alert_severities (
				alert_id TEXT NOT NULL,
				severity TEXT NOT NULL,
				PRIMARY KEY (alert_id, severity),
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_alert_severities_severity ON alert_severities(severity);
		`,
	},
	{
		Version: 2,
		Name:    "alert_history",
		Up: `
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				alert_name TEXT NOT NULL,
				event_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL,
				detail TEXT,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_alert_history_alert ON alert_history(alert_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_alert_history_event ON alert_history(event_id);
			CREATE INDEX IF NOT EXISTS idx_alert_history_created ON alert_history(created_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
