package testfixtures

import (
	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// EventOption tweaks an EventFixture.
type EventOption func(*EventFixture)

// EventFixture is a valid one-hour event in room "101" at 09:00.
type EventFixture struct {
	ID        string
	Title     string
	Room      string
	Start     scheduler.TimeOfDay
	Duration  int
	Capacity  int
	Hosts     []string
	Attendees []string
}

// NewEventFixture applies opts over the defaults.
func NewEventFixture(opts ...EventOption) EventFixture {
	fixture := EventFixture{
		ID:       "event-fixture",
		Title:    "Fixture Talk",
		Room:     "101",
		Start:    scheduler.MustTimeOfDay(9, 0),
		Duration: 60,
		Capacity: 10,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

func WithTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

func WithRoom(room string) EventOption {
	return func(f *EventFixture) { f.Room = room }
}

// WithWindow sets the start clock time and the duration in minutes.
func WithWindow(hour, minute, duration int) EventOption {
	return func(f *EventFixture) {
		f.Start = scheduler.MustTimeOfDay(hour, minute)
		f.Duration = duration
	}
}

func WithCapacity(capacity int) EventOption {
	return func(f *EventFixture) { f.Capacity = capacity }
}

func WithHosts(ids ...string) EventOption {
	return func(f *EventFixture) { f.Hosts = append([]string(nil), ids...) }
}

func WithAttendees(ids ...string) EventOption {
	return func(f *EventFixture) { f.Attendees = append([]string(nil), ids...) }
}

// Event returns the fixture as a domain event.
func (f EventFixture) Event() scheduler.Event {
	return scheduler.Event{
		ID:        f.ID,
		Title:     f.Title,
		Room:      f.Room,
		Start:     f.Start,
		Duration:  f.Duration,
		Capacity:  f.Capacity,
		Hosts:     append([]string(nil), f.Hosts...),
		Attendees: append([]string(nil), f.Attendees...),
	}
}

// Input returns the fixture as an engine request.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:    f.Title,
		Room:     f.Room,
		Start:    f.Start,
		Duration: f.Duration,
		Capacity: f.Capacity,
		HostIDs:  append([]string(nil), f.Hosts...),
	}
}
