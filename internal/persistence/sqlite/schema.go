package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one schema step. Versions are applied in slice order and
// recorded in schema_migrations so each runs once.
type migration struct {
	Version     string
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     "001",
		Description: "create snapshot tables",
		SQL: `
CREATE TABLE users (
	id       TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	name     TEXT NOT NULL,
	role     TEXT NOT NULL,
	banned   BOOLEAN NOT NULL DEFAULT 0
);
CREATE TABLE events (
	id               TEXT PRIMARY KEY,
	position         INTEGER NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	room             TEXT NOT NULL,
	start_minute     INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	capacity         INTEGER NOT NULL
);
CREATE TABLE event_hosts (
	event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	host_id  TEXT NOT NULL,
	PRIMARY KEY (event_id, host_id)
);
CREATE TABLE event_attendees (
	event_id    TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	attendee_id TEXT NOT NULL,
	PRIMARY KEY (event_id, attendee_id)
);`,
	},
	{
		Version:     "002",
		Description: "track snapshot save time",
		SQL: `
CREATE TABLE snapshot_meta (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	saved_at TEXT NOT NULL
);`,
	},
}

// Migrate applies every pending schema migration.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at  TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.isApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		err = s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply %s: %w", m.Version, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Description, time.Now().UTC().Format(time.RFC3339Nano),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("sqlite: migration %s (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// AppliedVersions lists recorded migrations in order.
func (s *Store) AppliedVersions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (s *Store) isApplied(ctx context.Context, version string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("sqlite: check migration %s: %w", version, err)
	}
	return count > 0, nil
}
