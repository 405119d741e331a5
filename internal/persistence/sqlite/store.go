// Package sqlite stores engine snapshots in a SQLite database through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/example/conference-scheduler/internal/persistence"
)

const defaultBusyTimeout = 5 * time.Second

// Store implements persistence.SnapshotStore.
type Store struct {
	db *sql.DB
}

var _ persistence.SnapshotStore = (*Store)(nil)

// Open connects to dsn and applies connection pragmas. Call Migrate before use.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	// Pragmas are per connection; a single connection keeps them in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot replaces the stored state in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot persistence.Snapshot) error {
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"event_attendees", "event_hosts", "events", "users", "snapshot_meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, user := range snapshot.Users {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, username, name, role, banned) VALUES (?, ?, ?, ?, ?)`,
				user.ID, user.Username, user.Name, user.Role, user.Banned,
			); err != nil {
				return fmt.Errorf("insert user %s: %w", user.ID, err)
			}
		}

		for position, event := range snapshot.Events {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (id, position, title, room, start_minute, duration_minutes, capacity) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				event.ID, position, event.Title, event.Room, event.Start, event.Duration, event.Capacity,
			); err != nil {
				return fmt.Errorf("insert event %s: %w", event.ID, err)
			}
			if err := insertMembers(ctx, tx, "event_hosts", "host_id", event.ID, event.Hosts); err != nil {
				return err
			}
			if err := insertMembers(ctx, tx, "event_attendees", "attendee_id", event.ID, event.Attendees); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_meta (id, saved_at) VALUES (1, ?)`,
			snapshot.SavedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert snapshot meta: %w", err)
		}
		return nil
	})
}

// LoadSnapshot reads the stored state. It returns persistence.ErrNotFound
// when no snapshot was ever saved.
func (s *Store) LoadSnapshot(ctx context.Context) (persistence.Snapshot, error) {
	var snapshot persistence.Snapshot

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var savedAt string
		err := tx.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&savedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read snapshot meta: %w", err)
		}
		if snapshot.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return fmt.Errorf("parse saved_at: %w", err)
		}

		if snapshot.Users, err = loadUsers(ctx, tx); err != nil {
			return err
		}
		snapshot.Events, err = loadEvents(ctx, tx)
		return err
	})
	if err != nil {
		return persistence.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, table, column, eventID string, members []string) error {
	query := fmt.Sprintf(`INSERT INTO %s (event_id, position, %s) VALUES (?, ?, ?)`, table, column)
	for position, member := range members {
		if _, err := tx.ExecContext(ctx, query, eventID, position, member); err != nil {
			return fmt.Errorf("insert %s for event %s: %w", table, eventID, err)
		}
	}
	return nil
}

func loadUsers(ctx context.Context, tx *sql.Tx) ([]persistence.UserRecord, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, username, name, role, banned FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []persistence.UserRecord
	for rows.Next() {
		var user persistence.UserRecord
		if err := rows.Scan(&user.ID, &user.Username, &user.Name, &user.Role, &user.Banned); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func loadEvents(ctx context.Context, tx *sql.Tx) ([]persistence.EventRecord, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, title, room, start_minute, duration_minutes, capacity FROM events ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []persistence.EventRecord
	for rows.Next() {
		var event persistence.EventRecord
		if err := rows.Scan(&event.ID, &event.Title, &event.Room, &event.Start, &event.Duration, &event.Capacity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range events {
		if events[i].Hosts, err = loadMembers(ctx, tx, "event_hosts", "host_id", events[i].ID); err != nil {
			return nil, err
		}
		if events[i].Attendees, err = loadMembers(ctx, tx, "event_attendees", "attendee_id", events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func loadMembers(ctx context.Context, tx *sql.Tx, table, column, eventID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE event_id = ? ORDER BY position`, column, table)
	rows, err := tx.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
