package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("event-%d", s.n)
}

type directoryStub struct {
	users map[string]access.User
	err   error
}

func (d *directoryStub) LookupUser(ctx context.Context, id string) (access.User, error) {
	if d.err != nil {
		return access.User{}, d.err
	}
	user, ok := d.users[id]
	if !ok {
		return access.User{}, ErrNotFound
	}
	return user, nil
}

type recorderStub struct {
	mu        sync.Mutex
	outcomes  []string
	conflicts int
	live      int
}

func (r *recorderStub) RecordOutcome(operation, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, operation+":"+kind)
}

func (r *recorderStub) RecordConflicts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts += n
}

func (r *recorderStub) SetLiveEvents(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(opts ...EventServiceOption) *EventService {
	ids := &sequentialIDs{}
	return NewEventService(ids.next, append([]EventServiceOption{WithLogger(quietLogger())}, opts...)...)
}

func clock(hour, minute int) scheduler.TimeOfDay {
	return scheduler.MustTimeOfDay(hour, minute)
}

func mustSchedule(t *testing.T, svc *EventService, input EventInput) EventView {
	t.Helper()
	view, err := svc.ScheduleEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("ScheduleEvent(%s) returned error: %v", input.Title, err)
	}
	return view
}

func assertOrdered(t *testing.T, views []EventView) {
	t.Helper()
	for i := 1; i < len(views); i++ {
		if views[i-1].Start > views[i].Start {
			t.Fatalf("events out of order: %s before %s", views[i-1].Start, views[i].Start)
		}
	}
	for i, view := range views {
		if view.Index != i {
			t.Fatalf("expected index %d for %s, got %d", i, view.ID, view.Index)
		}
	}
}

func TestEventService_RoomScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()

	a := mustSchedule(t, svc, EventInput{Title: "A", Room: "101", Start: clock(10, 0), Duration: 60, Capacity: 1, HostIDs: []string{"H1"}})

	_, err := svc.ScheduleEvent(ctx, EventInput{Title: "B", Room: "101", Start: clock(10, 30), Duration: 30, Capacity: 1, HostIDs: []string{"H2"}})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].Event.ID != a.ID {
		t.Fatalf("expected conflict set {A}, got %+v", conflict.Conflicts)
	}
	if len(svc.ListEvents(ctx)) != 1 {
		t.Fatalf("conflicting event must not be inserted")
	}

	mustSchedule(t, svc, EventInput{Title: "B", Room: "101", Start: clock(11, 0), Duration: 30, Capacity: 1, HostIDs: []string{"H2"}})

	view, err := svc.RegisterAttendee(ctx, "U1", 0)
	if err != nil {
		t.Fatalf("RegisterAttendee(U1) returned %v", err)
	}
	if view.Occupancy != 1 || view.Capacity != 1 {
		t.Fatalf("expected occupancy 1/1, got %d/%d", view.Occupancy, view.Capacity)
	}

	if _, err := svc.RegisterAttendee(ctx, "U2", 0); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	got, _ := svc.EventAt(ctx, 0)
	if len(got.AttendeeIDs) != 1 || got.AttendeeIDs[0] != "U1" {
		t.Fatalf("attendees changed after capacity failure: %v", got.AttendeeIDs)
	}
}

func TestEventService_ScheduleEvent_IdenticalSlotConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	existing := mustSchedule(t, svc, EventInput{Title: "Talk", Room: "hall", Start: clock(9, 0), Duration: 45, Capacity: 10})

	_, err := svc.ScheduleEvent(ctx, EventInput{Title: "Other", Room: "hall", Start: clock(9, 0), Duration: 45, Capacity: 10})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	found := false
	for _, c := range conflict.Conflicts {
		if c.Event.ID == existing.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflict set must contain the occupying event")
	}
	if len(svc.ListEvents(ctx)) != 1 {
		t.Fatalf("schedule size changed on conflict")
	}
}

func TestEventService_ScheduleEvent_ReportsEveryConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &recorderStub{}
	svc := newTestEngine(WithRecorder(rec))

	mustSchedule(t, svc, EventInput{Title: "Room clash", Room: "101", Start: clock(13, 0), Duration: 60})
	mustSchedule(t, svc, EventInput{Title: "Host clash", Room: "202", Start: clock(13, 30), Duration: 60, HostIDs: []string{"speaker"}})
	mustSchedule(t, svc, EventInput{Title: "Unrelated", Room: "303", Start: clock(13, 0), Duration: 60})

	_, err := svc.ScheduleEvent(ctx, EventInput{Title: "New", Room: "101", Start: clock(13, 15), Duration: 30, HostIDs: []string{"speaker"}})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 2 {
		t.Fatalf("expected two conflicts, got %+v", conflict.Conflicts)
	}
	if conflict.Conflicts[0].Reasons[0] != "room" || conflict.Conflicts[1].Reasons[0] != "host" {
		t.Fatalf("unexpected reasons %+v", conflict.Conflicts)
	}
	if conflict.Conflicts[1].SharedHosts[0] != "speaker" {
		t.Fatalf("expected shared host to be reported")
	}
	if rec.conflicts != 2 || rec.live != 3 {
		t.Fatalf("unexpected recorder state %+v", rec)
	}
}

func TestEventService_ScheduleEvent_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestEngine()

	_, err := svc.ScheduleEvent(context.Background(), EventInput{Title: " ", Room: "", Start: clock(23, 30), Duration: 60, Capacity: -1})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"title", "room", "capacity", "duration"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
		}
	}

	_, err = svc.ScheduleEvent(context.Background(), EventInput{Title: "t", Room: "r", Start: clock(9, 0), Duration: 0})
	if !errors.As(err, &vErr) || vErr.FieldErrors["duration"] == "" {
		t.Fatalf("expected duration validation error, got %v", err)
	}
}

func TestEventService_ScheduleEvent_HostChecks(t *testing.T) {
	t.Parallel()

	dir := &directoryStub{users: map[string]access.User{
		"spk": access.NewUser("spk", "sam", "Sam Speaker", access.RoleSpeaker),
		"att": access.NewUser("att", "ann", "Ann", access.RoleAttendee),
	}}
	svc := newTestEngine(WithUserDirectory(dir))
	ctx := context.Background()

	var vErr *ValidationError
	_, err := svc.ScheduleEvent(ctx, EventInput{Title: "t", Room: "r", Start: clock(9, 0), Duration: 30, HostIDs: []string{"ghost"}})
	if !errors.As(err, &vErr) || vErr.FieldErrors["hosts"] == "" {
		t.Fatalf("expected hosts validation error for unknown host, got %v", err)
	}

	_, err = svc.ScheduleEvent(ctx, EventInput{Title: "t", Room: "r", Start: clock(9, 0), Duration: 30, HostIDs: []string{"att"}})
	if !errors.As(err, &vErr) || vErr.FieldErrors["hosts"] == "" {
		t.Fatalf("expected hosts validation error for non-speaker, got %v", err)
	}

	view := mustSchedule(t, svc, EventInput{Title: "t", Room: "r", Start: clock(9, 0), Duration: 30, HostIDs: []string{"spk", "spk"}})
	if len(view.HostIDs) != 1 || view.HostNames[0] != "Sam Speaker" {
		t.Fatalf("expected deduplicated host with display name, got %+v", view)
	}

	_, err = svc.ScheduleEvent(ctx, EventInput{Title: "t", Room: "r", Start: clock(9, 0), Duration: 30, HostIDs: []string{"ghost", "att"}})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected hosts validation error, got %v", err)
	}
	if msg := vErr.FieldErrors["hosts"]; !strings.Contains(msg, "ghost") || !strings.Contains(msg, "att") {
		t.Fatalf("expected unknown and ineligible hosts reported together, got %q", msg)
	}

	dir.err = errors.New("directory offline")
	if _, err := svc.ScheduleEvent(ctx, EventInput{Title: "u", Room: "r", Start: clock(10, 0), Duration: 30, HostIDs: []string{"spk"}}); err == nil || ErrorKind(err) != "unexpected" {
		t.Fatalf("expected directory error to surface, got %v", err)
	}
}

func TestEventService_InsertOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	starts := []scheduler.TimeOfDay{clock(15, 0), clock(9, 0), clock(12, 0), clock(9, 0), clock(17, 30)}
	for i, start := range starts {
		mustSchedule(t, svc, EventInput{Title: fmt.Sprintf("e%d", i), Room: fmt.Sprintf("room-%d", i), Start: start, Duration: 30})
		assertOrdered(t, svc.ListEvents(ctx))
	}

	events := svc.ListEvents(ctx)
	if events[len(events)-1].Title != "e4" {
		t.Fatalf("latest start must be last, got %s", events[len(events)-1].Title)
	}
	if events[0].Title != "e1" || events[1].Title != "e3" {
		t.Fatalf("equal starts must keep insertion order, got %s, %s", events[0].Title, events[1].Title)
	}
}

func TestEventService_RescheduleEvent(t *testing.T) {
	t.Parallel()

	t.Run("overlapping only its own slot succeeds", func(t *testing.T) {
		ctx := context.Background()
		svc := newTestEngine()
		mustSchedule(t, svc, EventInput{Title: "E", Room: "101", Start: clock(10, 0), Duration: 60, HostIDs: []string{"h"}})

		view, err := svc.RescheduleEvent(ctx, 0, clock(10, 30), 60)
		if err != nil {
			t.Fatalf("self overlap must not conflict: %v", err)
		}
		if view.Start != clock(10, 30) || view.End != clock(11, 30) {
			t.Fatalf("unexpected window %s-%s", view.Start, view.End)
		}
	})

	t.Run("move restores ordering", func(t *testing.T) {
		ctx := context.Background()
		svc := newTestEngine()
		first := mustSchedule(t, svc, EventInput{Title: "first", Room: "a", Start: clock(9, 0), Duration: 30})
		mustSchedule(t, svc, EventInput{Title: "second", Room: "b", Start: clock(10, 0), Duration: 30})
		mustSchedule(t, svc, EventInput{Title: "third", Room: "c", Start: clock(11, 0), Duration: 30})

		view, err := svc.RescheduleEvent(ctx, 0, clock(16, 0), 45)
		if err != nil {
			t.Fatalf("RescheduleEvent returned %v", err)
		}
		if view.ID != first.ID || view.Index != 2 {
			t.Fatalf("expected moved event at index 2, got %+v", view)
		}
		assertOrdered(t, svc.ListEvents(ctx))
	})

	t.Run("conflict leaves event untouched", func(t *testing.T) {
		ctx := context.Background()
		svc := newTestEngine()
		mustSchedule(t, svc, EventInput{Title: "blocker", Room: "101", Start: clock(14, 0), Duration: 60})
		mustSchedule(t, svc, EventInput{Title: "mover", Room: "101", Start: clock(9, 0), Duration: 30})

		_, err := svc.RescheduleEvent(ctx, 0, clock(14, 30), 30)
		if !errors.Is(err, ErrSchedulingConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		view, _ := svc.EventAt(ctx, 0)
		if view.Title != "mover" || view.Start != clock(9, 0) || view.Duration != 30 {
			t.Fatalf("event changed after failed reschedule: %+v", view)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		svc := newTestEngine()
		if _, err := svc.RescheduleEvent(context.Background(), 0, clock(9, 0), 30); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
		}
	})
}

func TestEventService_CancelEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &recorderStub{}
	svc := newTestEngine(WithRecorder(rec))
	mustSchedule(t, svc, EventInput{Title: "gone", Room: "101", Start: clock(9, 0), Duration: 30, Capacity: 2})
	if _, err := svc.RegisterAttendee(ctx, "u1", 0); err != nil {
		t.Fatalf("RegisterAttendee returned %v", err)
	}

	removed, err := svc.CancelEvent(ctx, 0)
	if err != nil {
		t.Fatalf("CancelEvent returned %v", err)
	}
	if removed.Title != "gone" || removed.Occupancy != 1 {
		t.Fatalf("unexpected removed view %+v", removed)
	}
	if len(svc.ListEvents(ctx)) != 0 || rec.live != 0 {
		t.Fatalf("event still live after cancel")
	}

	if _, err := svc.CancelEvent(ctx, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if rec.outcomes[len(rec.outcomes)-1] != "CancelEvent:index_out_of_range" {
		t.Fatalf("unexpected last outcome %v", rec.outcomes)
	}
}

func TestEventService_Attendees(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	mustSchedule(t, svc, EventInput{Title: "E", Room: "101", Start: clock(9, 0), Duration: 30, Capacity: 3})

	if _, err := svc.RegisterAttendee(ctx, "u1", 0); err != nil {
		t.Fatalf("RegisterAttendee returned %v", err)
	}
	if _, err := svc.RegisterAttendee(ctx, "u1", 0); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := svc.RegisterAttendee(ctx, "u2", 0); err != nil {
		t.Fatalf("RegisterAttendee returned %v", err)
	}
	if _, err := svc.RegisterAttendee(ctx, "u3", 7); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}

	first, err := svc.RemoveAttendee(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("first RemoveAttendee returned %v", err)
	}
	if _, err := svc.RemoveAttendee(ctx, "u1", 0); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	after, _ := svc.EventAt(ctx, 0)
	if len(after.AttendeeIDs) != len(first.AttendeeIDs) || after.AttendeeIDs[0] != "u2" {
		t.Fatalf("second removal changed attendees: %v vs %v", after.AttendeeIDs, first.AttendeeIDs)
	}

	var vErr *ValidationError
	if _, err := svc.RegisterAttendee(ctx, "", 0); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty user id, got %v", err)
	}
}

func TestEventService_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	mustSchedule(t, svc, EventInput{Title: "Keynote", Room: "hall", Start: clock(9, 45), Duration: 30, Capacity: 1, HostIDs: []string{"h1"}})
	mustSchedule(t, svc, EventInput{Title: "Workshop", Room: "101", Start: clock(10, 15), Duration: 45, Capacity: 5, HostIDs: []string{"h2"}})
	mustSchedule(t, svc, EventInput{Title: "Marathon", Room: "202", Start: clock(9, 0), Duration: 120, Capacity: 5})

	if _, err := svc.RegisterAttendee(ctx, "u1", 1); err != nil { // Keynote sits at index 1
		t.Fatalf("RegisterAttendee returned %v", err)
	}

	titles := func(views []EventView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Title)
		}
		return out
	}
	assertTitles := func(got []EventView, want ...string) {
		t.Helper()
		names := titles(got)
		if fmt.Sprint(names) != fmt.Sprint(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	interval, err := svc.EventsInInterval(ctx, clock(10, 0), clock(10, 30))
	if err != nil {
		t.Fatalf("EventsInInterval returned %v", err)
	}
	assertTitles(interval, "Keynote", "Workshop")
	if interval[1].Index != 2 {
		t.Fatalf("projected index must address the full schedule, got %d", interval[1].Index)
	}

	if _, err := svc.EventsInInterval(ctx, clock(11, 0), clock(10, 0)); err == nil {
		t.Fatalf("expected error for reversed interval")
	}

	assertTitles(svc.EventsByAttendee(ctx, "u1"), "Keynote")
	assertTitles(svc.SignupEligibleEvents(ctx, "u1"), "Marathon", "Workshop")
	assertTitles(svc.SignupEligibleEvents(ctx, "u2"), "Marathon", "Workshop")
	assertTitles(svc.EventsByHost(ctx, "h2"), "Workshop")
	assertTitles(svc.EventsByTitle(ctx, "Keynote"), "Keynote")
	assertTitles(svc.EventsByRoom(ctx, "202"), "Marathon")

	idx, err := svc.FindEventIndex(ctx, svc.EventsByTitle(ctx, "Workshop")[0].ID)
	if err != nil || idx != 2 {
		t.Fatalf("FindEventIndex = %d, %v", idx, err)
	}
	if _, err := svc.FindEventIndex(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stats := svc.Stats(ctx)
	if stats.LiveEvents != 3 || stats.FullEvents != 1 || stats.Rooms != 3 || stats.TotalCapacity != 11 || stats.TotalAttendees != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestEventService_SnapshotRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	mustSchedule(t, svc, EventInput{Title: "late", Room: "a", Start: clock(15, 0), Duration: 30, Capacity: 2})
	mustSchedule(t, svc, EventInput{Title: "early", Room: "a", Start: clock(8, 0), Duration: 30, Capacity: 2})
	if _, err := svc.RegisterAttendee(ctx, "u1", 1); err != nil {
		t.Fatalf("RegisterAttendee returned %v", err)
	}

	snapshot := svc.Snapshot()
	snapshot[0].Title = "mutated"

	if svc.ListEvents(ctx)[0].Title != "early" {
		t.Fatalf("snapshot must be a deep copy")
	}

	other := newTestEngine()
	if err := other.Restore(svc.Snapshot()); err != nil {
		t.Fatalf("Restore returned %v", err)
	}
	restored := other.ListEvents(ctx)
	if len(restored) != 2 || restored[0].Title != "early" || restored[1].AttendeeIDs[0] != "u1" {
		t.Fatalf("unexpected restored schedule %+v", restored)
	}

	bad := svc.Snapshot()
	bad[0].Attendees = []string{"x", "y", "z"}
	if err := other.Restore(bad); err == nil {
		t.Fatalf("expected over-capacity restore to fail")
	}
	if len(other.ListEvents(ctx)) != 2 {
		t.Fatalf("failed restore must keep current schedule")
	}

	dup := svc.Snapshot()
	dup[1].ID = dup[0].ID
	var vErr *ValidationError
	if err := other.Restore(dup); !errors.As(err, &vErr) {
		t.Fatalf("expected duplicate id validation error, got %v", err)
	}
}

func TestEventService_RestoreRejectsConflictingEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()
	mustSchedule(t, svc, EventInput{Title: "kept", Room: "a", Start: clock(8, 0), Duration: 30, Capacity: 1})

	base := scheduler.Event{ID: "e-1", Title: "one", Room: "a", Start: clock(9, 0), Duration: 60, Capacity: 5, Hosts: []string{"h1"}}
	cases := []struct {
		name   string
		second scheduler.Event
	}{
		{name: "same room overlapping", second: scheduler.Event{ID: "e-2", Title: "two", Room: "a", Start: clock(9, 30), Duration: 60, Capacity: 5}},
		{name: "shared host overlapping", second: scheduler.Event{ID: "e-2", Title: "two", Room: "b", Start: clock(9, 0), Duration: 15, Capacity: 5, Hosts: []string{"h1"}}},
		{name: "duplicate hosts", second: scheduler.Event{ID: "e-2", Title: "two", Room: "b", Start: clock(12, 0), Duration: 15, Capacity: 5, Hosts: []string{"h2", "h2"}}},
	}
	for _, tc := range cases {
		var vErr *ValidationError
		if err := svc.Restore([]scheduler.Event{base, tc.second}); !errors.As(err, &vErr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if views := svc.ListEvents(ctx); len(views) != 1 || views[0].Title != "kept" {
			t.Fatalf("%s: failed restore must keep current schedule, got %+v", tc.name, views)
		}
	}

	touching := scheduler.Event{ID: "e-2", Title: "two", Room: "a", Start: clock(10, 0), Duration: 30, Capacity: 5, Hosts: []string{"h1"}}
	if err := svc.Restore([]scheduler.Event{touching, base}); err != nil {
		t.Fatalf("back-to-back events must restore, got %v", err)
	}
	if views := svc.ListEvents(ctx); len(views) != 2 || views[0].ID != "e-1" {
		t.Fatalf("unexpected restored schedule %+v", views)
	}
}

func TestEventService_ConcurrentSchedulingSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestEngine()

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ScheduleEvent(ctx, EventInput{Title: fmt.Sprintf("c%d", i), Room: "101", Start: clock(10, 0), Duration: 60})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one caller to win the slot, got %d", wins)
	}
	if len(svc.ListEvents(ctx)) != 1 {
		t.Fatalf("expected a single live event")
	}
}
