package scheduler

import (
	"errors"
	"slices"
)

var (
	// ErrCapacityExceeded is returned when an event has no free seat left.
	ErrCapacityExceeded = errors.New("scheduler: event is at capacity")
	// ErrAlreadyRegistered is returned when the attendee already holds a seat.
	ErrAlreadyRegistered = errors.New("scheduler: attendee already registered")
	// ErrNotRegistered is returned when removing an attendee that holds no seat.
	ErrNotRegistered = errors.New("scheduler: attendee not registered")
	// ErrIndexOutOfRange is returned when an index does not address a live event.
	ErrIndexOutOfRange = errors.New("scheduler: index out of range")
)

// Event is one scheduled activity. Hosts and Attendees keep insertion order
// and hold no duplicates.
type Event struct {
	ID        string
	Title     string
	Room      string
	Start     TimeOfDay
	Duration  int
	Capacity  int
	Hosts     []string
	Attendees []string
}

// End returns Start plus Duration.
func (e *Event) End() TimeOfDay {
	return e.Start.Add(e.Duration)
}

// HasHost reports whether id hosts the event.
func (e *Event) HasHost(id string) bool {
	return slices.Contains(e.Hosts, id)
}

// HasAttendee reports whether id holds a seat.
func (e *Event) HasAttendee(id string) bool {
	return slices.Contains(e.Attendees, id)
}

// AtCapacity reports whether every seat is taken.
func (e *Event) AtCapacity() bool {
	return len(e.Attendees) >= e.Capacity
}

// SharedHosts returns the hosts of e that also host other, in e's order.
func (e *Event) SharedHosts(other *Event) []string {
	var shared []string
	for _, host := range e.Hosts {
		if other.HasHost(host) {
			shared = append(shared, host)
		}
	}
	return shared
}

// AddAttendee appends id to the attendee list.
func (e *Event) AddAttendee(id string) error {
	if e.HasAttendee(id) {
		return ErrAlreadyRegistered
	}
	if e.AtCapacity() {
		return ErrCapacityExceeded
	}
	e.Attendees = append(e.Attendees, id)
	return nil
}

// RemoveAttendee drops id from the attendee list.
func (e *Event) RemoveAttendee(id string) error {
	idx := slices.Index(e.Attendees, id)
	if idx < 0 {
		return ErrNotRegistered
	}
	e.Attendees = slices.Delete(e.Attendees, idx, idx+1)
	return nil
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	out := *e
	out.Hosts = slices.Clone(e.Hosts)
	out.Attendees = slices.Clone(e.Attendees)
	return &out
}
