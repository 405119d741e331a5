package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// UserDirectory exposes the user lookups the engine needs for host checks
// and display names.
type UserDirectory interface {
	LookupUser(ctx context.Context, id string) (access.User, error)
}

// Recorder receives operation outcomes. kind is empty on success and an
// ErrorKind label otherwise.
type Recorder interface {
	RecordOutcome(operation, kind string)
	RecordConflicts(n int)
	SetLiveEvents(n int)
}

// EventServiceOption configures an EventService.
type EventServiceOption func(*EventService)

// WithUserDirectory enables host validation and host display names.
func WithUserDirectory(users UserDirectory) EventServiceOption {
	return func(s *EventService) { s.users = users }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) EventServiceOption {
	return func(s *EventService) { s.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) EventServiceOption {
	return func(s *EventService) { s.recorder = recorder }
}

// EventService is the scheduling engine. It owns the schedule, detects room
// and host conflicts, and enforces capacity. It does not check permissions;
// callers go through Gate for that.
//
// Mutations hold the write lock across conflict detection and insertion so
// two callers can never both win an overlapping slot.
type EventService struct {
	mu          sync.RWMutex
	schedule    *scheduler.Schedule
	users       UserDirectory
	idGenerator func() string
	logger      *slog.Logger
	recorder    Recorder
}

// NewEventService wires an empty engine. A nil idGenerator falls back to random UUIDs.
func NewEventService(idGenerator func() string, opts ...EventServiceOption) *EventService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	s := &EventService{
		schedule:    scheduler.NewSchedule(),
		idGenerator: idGenerator,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = defaultLogger(s.logger)
	return s
}

// ScheduleEvent validates the request and inserts a new event unless it
// conflicts with a live event. On conflict the returned error is a
// *ConflictError listing every blocking event.
func (s *EventService) ScheduleEvent(ctx context.Context, input EventInput) (EventView, error) {
	if s == nil {
		return EventView{}, fmt.Errorf("EventService is nil")
	}
	const op = "ScheduleEvent"
	logger := serviceLogger(ctx, s.logger, "EventService", op, "title", input.Title, "room", input.Room, "start", input.Start.String())

	vErr := &ValidationError{}
	validateEventInput(input, vErr)
	if vErr.HasErrors() {
		return EventView{}, s.fail(ctx, logger, op, vErr)
	}

	hosts := uniqueStrings(input.HostIDs)
	if err := s.ensureHostsCanSpeak(ctx, hosts); err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := &scheduler.Event{
		Title:    strings.TrimSpace(input.Title),
		Room:     strings.TrimSpace(input.Room),
		Start:    input.Start,
		Duration: input.Duration,
		Capacity: input.Capacity,
		Hosts:    hosts,
	}

	if err := s.conflictsLocked(ctx, candidate); err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}

	candidate.ID = s.idGenerator()
	index := s.schedule.Insert(candidate)
	s.succeed(op)

	logger.Info("event scheduled", "event_id", candidate.ID, "index", index)
	return s.project(ctx, candidate, index), nil
}

// RescheduleEvent moves the event at index to a new window. The event's own
// current slot is ignored by the conflict check.
func (s *EventService) RescheduleEvent(ctx context.Context, index int, start scheduler.TimeOfDay, duration int) (EventView, error) {
	if s == nil {
		return EventView{}, fmt.Errorf("EventService is nil")
	}
	const op = "RescheduleEvent"
	logger := serviceLogger(ctx, s.logger, "EventService", op, "index", index, "start", start.String(), "duration", duration)

	vErr := &ValidationError{}
	validateWindow(start, duration, vErr)
	if vErr.HasErrors() {
		return EventView{}, s.fail(ctx, logger, op, vErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.schedule.At(index)
	if err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}

	candidate := event.Clone()
	candidate.Start = start
	candidate.Duration = duration

	if err := s.conflictsLocked(ctx, candidate); err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}

	event.Start = start
	event.Duration = duration
	s.schedule.Sort()
	s.succeed(op)

	newIndex := s.schedule.IndexOf(event.ID)
	logger.Info("event rescheduled", "event_id", event.ID, "new_index", newIndex)
	return s.project(ctx, event, newIndex), nil
}

// CancelEvent removes the event at index regardless of its attendees.
func (s *EventService) CancelEvent(ctx context.Context, index int) (EventView, error) {
	if s == nil {
		return EventView{}, fmt.Errorf("EventService is nil")
	}
	const op = "CancelEvent"
	logger := serviceLogger(ctx, s.logger, "EventService", op, "index", index)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.schedule.RemoveAt(index)
	if err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}
	s.succeed(op)

	logger.Info("event cancelled", "event_id", removed.ID, "attendees", len(removed.Attendees))
	return s.project(ctx, removed, -1), nil
}

// RegisterAttendee gives userID a seat in the event at index.
func (s *EventService) RegisterAttendee(ctx context.Context, userID string, index int) (EventView, error) {
	return s.mutateAttendees(ctx, "RegisterAttendee", userID, index, (*scheduler.Event).AddAttendee)
}

// RemoveAttendee frees userID's seat in the event at index.
func (s *EventService) RemoveAttendee(ctx context.Context, userID string, index int) (EventView, error) {
	return s.mutateAttendees(ctx, "RemoveAttendee", userID, index, (*scheduler.Event).RemoveAttendee)
}

func (s *EventService) mutateAttendees(ctx context.Context, op, userID string, index int, apply func(*scheduler.Event, string) error) (EventView, error) {
	if s == nil {
		return EventView{}, fmt.Errorf("EventService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "EventService", op, "user_id", userID, "index", index)

	if strings.TrimSpace(userID) == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user id is required")
		return EventView{}, s.fail(ctx, logger, op, vErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.schedule.At(index)
	if err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}
	if err := apply(event, userID); err != nil {
		return EventView{}, s.fail(ctx, logger, op, err)
	}
	s.succeed(op)

	logger.Debug("attendees updated", "event_id", event.ID, "occupancy", len(event.Attendees), "capacity", event.Capacity)
	return s.project(ctx, event, index), nil
}

// ListEvents returns every live event in start order.
func (s *EventService) ListEvents(ctx context.Context) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched })
}

// EventAt returns the event at index.
func (s *EventService) EventAt(ctx context.Context, index int) (EventView, error) {
	if s == nil {
		return EventView{}, fmt.Errorf("EventService is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, err := s.schedule.At(index)
	if err != nil {
		return EventView{}, err
	}
	return s.project(ctx, event, index), nil
}

// FindEventIndex returns the current position of the event with id.
func (s *EventService) FindEventIndex(_ context.Context, id string) (int, error) {
	if s == nil {
		return -1, fmt.Errorf("EventService is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := s.schedule.IndexOf(id)
	if index < 0 {
		return -1, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return index, nil
}

// SignupEligibleEvents returns events userID has not joined that still have a free seat.
func (s *EventService) SignupEligibleEvents(ctx context.Context, userID string) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.SignupEligible(userID) })
}

// EventsByAttendee returns the events userID holds a seat in.
func (s *EventService) EventsByAttendee(ctx context.Context, userID string) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.ByAttendee(userID) })
}

// EventsByHost returns the events hostID hosts.
func (s *EventService) EventsByHost(ctx context.Context, hostID string) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.ByHost(hostID) })
}

// EventsByTitle returns the events titled exactly title.
func (s *EventService) EventsByTitle(ctx context.Context, title string) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.ByTitle(title) })
}

// EventsByRoom returns the events held in room.
func (s *EventService) EventsByRoom(ctx context.Context, room string) []EventView {
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.ByRoom(room) })
}

// EventsInInterval returns the events matching scheduler.Schedule.ByTimeInterval.
func (s *EventService) EventsInInterval(ctx context.Context, start, end scheduler.TimeOfDay) ([]EventView, error) {
	if end < start {
		vErr := &ValidationError{}
		vErr.add("end", "end must not be before start")
		return nil, vErr
	}
	return s.query(ctx, func(sched *scheduler.Schedule) *scheduler.Schedule { return sched.ByTimeInterval(start, end) }), nil
}

// Stats summarises occupancy of the live schedule.
func (s *EventService) Stats(_ context.Context) Stats {
	if s == nil {
		return Stats{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make(map[string]struct{})
	stats := Stats{}
	for _, event := range s.schedule.Events() {
		stats.LiveEvents++
		stats.TotalCapacity += event.Capacity
		stats.TotalAttendees += len(event.Attendees)
		if event.AtCapacity() {
			stats.FullEvents++
		}
		rooms[event.Room] = struct{}{}
	}
	stats.Rooms = len(rooms)
	return stats
}

// Snapshot returns deep copies of every live event in order, for the
// persistence collaborator.
func (s *EventService) Snapshot() []scheduler.Event {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.schedule.Events()
	out := make([]scheduler.Event, 0, len(events))
	for _, event := range events {
		out = append(out, *event.Clone())
	}
	return out
}

// Restore replaces the schedule with events. Every event is validated and
// checked for room and host conflicts against the events restored before it;
// on error the current schedule is kept.
func (s *EventService) Restore(events []scheduler.Event) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	seen := make(map[string]struct{}, len(events))
	restored := scheduler.NewSchedule()
	for i, event := range events {
		if err := validateRestoredEvent(event, seen); err != nil {
			return fmt.Errorf("restore event %d: %w", i, err)
		}
		candidate := event.Clone()
		if conflicts := scheduler.DetectConflicts(restored.Events(), candidate); len(conflicts) > 0 {
			vErr := &ValidationError{}
			vErr.add("window", fmt.Sprintf("overlaps event %s (%s)", conflicts[0].With.ID, conflictReasons(conflicts[0])))
			return fmt.Errorf("restore event %d: %w", i, vErr)
		}
		restored.Insert(candidate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = restored
	if s.recorder != nil {
		s.recorder.SetLiveEvents(s.schedule.Len())
	}
	return nil
}

func (s *EventService) query(ctx context.Context, filter func(*scheduler.Schedule) *scheduler.Schedule) []EventView {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make(map[*scheduler.Event]int, s.schedule.Len())
	for i, event := range s.schedule.Events() {
		positions[event] = i
	}

	matched := filter(s.schedule).Events()
	views := make([]EventView, 0, len(matched))
	for _, event := range matched {
		views = append(views, s.project(ctx, event, positions[event]))
	}
	return views
}

func (s *EventService) conflictsLocked(ctx context.Context, candidate *scheduler.Event) error {
	conflicts := scheduler.DetectConflicts(s.schedule.Events(), candidate)
	if len(conflicts) == 0 {
		return nil
	}
	if s.recorder != nil {
		s.recorder.RecordConflicts(len(conflicts))
	}

	views := make([]ConflictView, 0, len(conflicts))
	for _, conflict := range conflicts {
		views = append(views, ConflictView{
			Event:       s.project(ctx, conflict.With, s.schedule.IndexOf(conflict.With.ID)),
			Reasons:     reasonLabels(conflict),
			SharedHosts: conflict.SharedHosts,
		})
	}
	return &ConflictError{Conflicts: views}
}

func reasonLabels(conflict scheduler.Conflict) []string {
	reasons := make([]string, 0, len(conflict.Types))
	for _, t := range conflict.Types {
		reasons = append(reasons, string(t))
	}
	return reasons
}

func conflictReasons(conflict scheduler.Conflict) string {
	return strings.Join(reasonLabels(conflict), ", ")
}

func (s *EventService) ensureHostsCanSpeak(ctx context.Context, hosts []string) error {
	if s.users == nil || len(hosts) == 0 {
		return nil
	}
	var unknown, ineligible []string
	for _, id := range hosts {
		user, err := s.users.LookupUser(ctx, id)
		if errors.Is(err, ErrNotFound) {
			unknown = append(unknown, id)
			continue
		}
		if err != nil {
			return err
		}
		if !user.Can(access.CanSpeakAtTalk) {
			ineligible = append(ineligible, id)
		}
	}
	if len(unknown) == 0 && len(ineligible) == 0 {
		return nil
	}

	problems := make([]string, 0, 2)
	if len(unknown) > 0 {
		problems = append(problems, fmt.Sprintf("unknown user ids: %s", strings.Join(unknown, ", ")))
	}
	if len(ineligible) > 0 {
		problems = append(problems, fmt.Sprintf("users cannot speak at talks: %s", strings.Join(ineligible, ", ")))
	}
	vErr := &ValidationError{}
	vErr.add("hosts", strings.Join(problems, "; "))
	return vErr
}

func (s *EventService) project(ctx context.Context, event *scheduler.Event, index int) EventView {
	view := EventView{
		Index:       index,
		ID:          event.ID,
		Title:       event.Title,
		Room:        event.Room,
		Start:       event.Start,
		End:         event.End(),
		Duration:    event.Duration,
		HostIDs:     append([]string(nil), event.Hosts...),
		AttendeeIDs: append([]string(nil), event.Attendees...),
		Occupancy:   len(event.Attendees),
		Capacity:    event.Capacity,
	}
	view.HostNames = make([]string, 0, len(event.Hosts))
	for _, id := range event.Hosts {
		name := id
		if s.users != nil {
			if user, err := s.users.LookupUser(ctx, id); err == nil {
				name = user.DisplayName()
			}
		}
		view.HostNames = append(view.HostNames, name)
	}
	return view
}

func (s *EventService) succeed(op string) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordOutcome(op, "")
	s.recorder.SetLiveEvents(s.schedule.Len())
}

func (s *EventService) fail(ctx context.Context, logger *slog.Logger, op string, err error) error {
	if s.recorder != nil {
		s.recorder.RecordOutcome(op, ErrorKind(err))
	}
	return logFailure(ctx, logger, "event operation rejected", err)
}

func validateEventInput(input EventInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if strings.TrimSpace(input.Room) == "" {
		vErr.add("room", "room is required")
	}
	if input.Capacity < 0 {
		vErr.add("capacity", "capacity must not be negative")
	}
	validateWindow(input.Start, input.Duration, vErr)
}

func validateWindow(start scheduler.TimeOfDay, duration int, vErr *ValidationError) {
	if !start.Valid() {
		vErr.add("start", "start must be between 00:00 and 23:59")
	}
	if duration <= 0 {
		vErr.add("duration", "duration must be positive")
		return
	}
	if start.Valid() && start.Add(duration) > scheduler.MinutesPerDay {
		vErr.add("duration", "event must end by 24:00")
	}
}

func validateRestoredEvent(event scheduler.Event, seen map[string]struct{}) error {
	vErr := &ValidationError{}
	if event.ID == "" {
		vErr.add("id", "id is required")
	} else if _, dup := seen[event.ID]; dup {
		vErr.add("id", "duplicate event id")
	}
	validateEventInput(EventInput{
		Title:    event.Title,
		Room:     event.Room,
		Start:    event.Start,
		Duration: event.Duration,
		Capacity: event.Capacity,
	}, vErr)
	if len(event.Attendees) > event.Capacity {
		vErr.add("attendees", "attendees exceed capacity")
	}
	if len(uniqueStrings(event.Attendees)) != len(event.Attendees) {
		vErr.add("attendees", "attendees must be unique")
	}
	if len(uniqueStrings(event.Hosts)) != len(event.Hosts) {
		vErr.add("hosts", "hosts must be unique and non-empty")
	}
	if vErr.HasErrors() {
		return vErr
	}
	seen[event.ID] = struct{}{}
	return nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
