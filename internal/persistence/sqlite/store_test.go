package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/example/conference-scheduler/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "scheduler.db")
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestStore_Migrate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate returned %v", err)
	}
	versions, err := store.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions returned %v", err)
	}
	if !slices.Equal(versions, []string{"001", "002"}) {
		t.Fatalf("unexpected versions %v", versions)
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LoadSnapshot(context.Background()); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	savedAt := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	snapshot := persistence.Snapshot{
		Users: []persistence.UserRecord{
			{ID: "u-2", Username: "zed", Name: "Zed", Role: "speaker"},
			{ID: "u-1", Username: "ann", Name: "Ann", Role: "attendee", Banned: true},
		},
		Events: []persistence.EventRecord{
			{ID: "e-2", Title: "Keynote", Room: "Hall", Start: 540, Duration: 60, Capacity: 3, Hosts: []string{"u-2"}, Attendees: []string{"u-1"}},
			{ID: "e-1", Title: "Workshop", Room: "101", Start: 600, Duration: 30, Capacity: 1},
		},
		SavedAt: savedAt,
	}

	if err := store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot returned %v", err)
	}
	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned %v", err)
	}

	if !loaded.SavedAt.Equal(savedAt) {
		t.Fatalf("expected saved_at %v, got %v", savedAt, loaded.SavedAt)
	}
	if len(loaded.Users) != 2 || loaded.Users[0].Username != "ann" || !loaded.Users[0].Banned {
		t.Fatalf("unexpected users %+v", loaded.Users)
	}
	if len(loaded.Events) != 2 || loaded.Events[0].ID != "e-2" || loaded.Events[1].ID != "e-1" {
		t.Fatalf("events must keep schedule order, got %+v", loaded.Events)
	}
	if !slices.Equal(loaded.Events[0].Hosts, []string{"u-2"}) || !slices.Equal(loaded.Events[0].Attendees, []string{"u-1"}) {
		t.Fatalf("unexpected members %+v", loaded.Events[0])
	}
	if len(loaded.Events[1].Hosts) != 0 || len(loaded.Events[1].Attendees) != 0 {
		t.Fatalf("expected no members, got %+v", loaded.Events[1])
	}
}

func TestStore_SaveReplacesPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := persistence.Snapshot{
		Users:  []persistence.UserRecord{{ID: "u-1", Username: "ann", Role: "attendee"}},
		Events: []persistence.EventRecord{{ID: "e-1", Title: "Old", Room: "1", Start: 60, Duration: 10, Capacity: 1, Attendees: []string{"u-1"}}},
	}
	if err := store.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("first SaveSnapshot returned %v", err)
	}

	second := persistence.Snapshot{
		Users: []persistence.UserRecord{{ID: "u-9", Username: "bob", Role: "organizer"}},
	}
	if err := store.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("second SaveSnapshot returned %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned %v", err)
	}
	if len(loaded.Users) != 1 || loaded.Users[0].ID != "u-9" || len(loaded.Events) != 0 {
		t.Fatalf("expected only the second snapshot, got %+v", loaded)
	}
	if loaded.SavedAt.IsZero() {
		t.Fatalf("expected save time to default to now")
	}
}

func TestStore_FailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	good := persistence.Snapshot{Users: []persistence.UserRecord{{ID: "u-1", Username: "ann", Role: "attendee"}}}
	if err := store.SaveSnapshot(ctx, good); err != nil {
		t.Fatalf("SaveSnapshot returned %v", err)
	}

	bad := persistence.Snapshot{Users: []persistence.UserRecord{
		{ID: "u-2", Username: "dup", Role: "attendee"},
		{ID: "u-3", Username: "dup", Role: "attendee"},
	}}
	if err := store.SaveSnapshot(ctx, bad); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned %v", err)
	}
	if len(loaded.Users) != 1 || loaded.Users[0].ID != "u-1" {
		t.Fatalf("failed save must leave the previous snapshot, got %+v", loaded.Users)
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
