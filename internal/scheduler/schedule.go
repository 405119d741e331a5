// Package scheduler implements the ordered event store and the overlap rules
// used to detect scheduling conflicts.
package scheduler

import (
	"fmt"
	"slices"
	"sort"
)

// Schedule is a sequence of events kept in non-decreasing start order. Events
// with equal start times stay in insertion order.
//
// Query methods return new schedules that share the underlying events with the
// receiver; they never modify it.
type Schedule struct {
	events []*Event
}

// NewSchedule returns a schedule holding events in start order.
func NewSchedule(events ...*Event) *Schedule {
	s := &Schedule{events: make([]*Event, 0, len(events))}
	for _, event := range events {
		s.Insert(event)
	}
	return s
}

// Len returns the number of live events.
func (s *Schedule) Len() int {
	return len(s.events)
}

// Events returns the events in order. The slice is a copy.
func (s *Schedule) Events() []*Event {
	return slices.Clone(s.events)
}

// Insert places event after every event starting at or before it and returns
// its index.
func (s *Schedule) Insert(event *Event) int {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Start > event.Start
	})
	s.events = slices.Insert(s.events, idx, event)
	return idx
}

// At returns the event at index.
func (s *Schedule) At(index int) (*Event, error) {
	if index < 0 || index >= len(s.events) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(s.events))
	}
	return s.events[index], nil
}

// RemoveAt deletes and returns the event at index.
func (s *Schedule) RemoveAt(index int) (*Event, error) {
	event, err := s.At(index)
	if err != nil {
		return nil, err
	}
	s.events = slices.Delete(s.events, index, index+1)
	return event, nil
}

// IndexOf returns the position of the event with id, or -1.
func (s *Schedule) IndexOf(id string) int {
	return slices.IndexFunc(s.events, func(e *Event) bool { return e.ID == id })
}

// Sort restores start order after an event's start time changed in place.
func (s *Schedule) Sort() {
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Start < s.events[j].Start
	})
}

// ByTimeInterval returns the events that either start at or before start and
// end within [start, end], or start within [start, end) and end after end.
//
// An event that starts before start and ends after end is not returned.
func (s *Schedule) ByTimeInterval(start, end TimeOfDay) *Schedule {
	return s.filter(func(e *Event) bool {
		eventEnd := e.End()
		if e.Start <= start && eventEnd >= start && eventEnd <= end {
			return true
		}
		return e.Start >= start && e.Start < end && eventEnd > end
	})
}

// ByHost returns the events hosted by id.
func (s *Schedule) ByHost(id string) *Schedule {
	return s.filter(func(e *Event) bool { return e.HasHost(id) })
}

// ByTitle returns the events whose title equals title exactly.
func (s *Schedule) ByTitle(title string) *Schedule {
	return s.filter(func(e *Event) bool { return e.Title == title })
}

// ByRoom returns the events held in room.
func (s *Schedule) ByRoom(room string) *Schedule {
	return s.filter(func(e *Event) bool { return e.Room == room })
}

// ByAttendee returns the events id has a seat in.
func (s *Schedule) ByAttendee(id string) *Schedule {
	return s.filter(func(e *Event) bool { return e.HasAttendee(id) })
}

// SignupEligible returns the events id has not joined that still have a free seat.
func (s *Schedule) SignupEligible(id string) *Schedule {
	return s.filter(func(e *Event) bool { return !e.HasAttendee(id) && !e.AtCapacity() })
}

func (s *Schedule) filter(keep func(*Event) bool) *Schedule {
	matched := make([]*Event, 0)
	for _, event := range s.events {
		if keep(event) {
			matched = append(matched, event)
		}
	}
	return &Schedule{events: matched}
}
