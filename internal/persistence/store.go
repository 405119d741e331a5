package persistence

import "context"

// SnapshotStore saves and restores the whole engine state at once.
type SnapshotStore interface {
	// SaveSnapshot replaces any previously stored state.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	// LoadSnapshot returns ErrNotFound when nothing has been saved yet.
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}
