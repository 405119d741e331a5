package persistence

import (
	"slices"
	"time"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// UserRecord is the stored form of an account. Permissions are not stored;
// they are rebuilt from Role on load.
type UserRecord struct {
	ID       string
	Username string
	Name     string
	Role     string
	Banned   bool
}

// EventRecord is the stored form of an event. Start and Duration are minutes.
type EventRecord struct {
	ID        string
	Title     string
	Room      string
	Start     int
	Duration  int
	Capacity  int
	Hosts     []string
	Attendees []string
}

// Snapshot is the complete engine state. Events keep schedule order.
type Snapshot struct {
	Users   []UserRecord
	Events  []EventRecord
	SavedAt time.Time
}

// UserRecords converts accounts to their stored form.
func UserRecords(users []access.User) []UserRecord {
	records := make([]UserRecord, 0, len(users))
	for _, user := range users {
		records = append(records, UserRecord{
			ID:       user.ID,
			Username: user.Username,
			Name:     user.Name,
			Role:     string(user.Role),
			Banned:   user.Banned,
		})
	}
	return records
}

// DomainUsers converts stored accounts back, rebuilding permissions from each role.
func (s Snapshot) DomainUsers() []access.User {
	users := make([]access.User, 0, len(s.Users))
	for _, record := range s.Users {
		user := access.NewUser(record.ID, record.Username, record.Name, access.Role(record.Role))
		user.Banned = record.Banned
		users = append(users, user)
	}
	return users
}

// EventRecords converts events to their stored form.
func EventRecords(events []scheduler.Event) []EventRecord {
	records := make([]EventRecord, 0, len(events))
	for _, event := range events {
		records = append(records, EventRecord{
			ID:        event.ID,
			Title:     event.Title,
			Room:      event.Room,
			Start:     int(event.Start),
			Duration:  event.Duration,
			Capacity:  event.Capacity,
			Hosts:     slices.Clone(event.Hosts),
			Attendees: slices.Clone(event.Attendees),
		})
	}
	return records
}

// DomainEvents converts stored events back in schedule order.
func (s Snapshot) DomainEvents() []scheduler.Event {
	events := make([]scheduler.Event, 0, len(s.Events))
	for _, record := range s.Events {
		events = append(events, scheduler.Event{
			ID:        record.ID,
			Title:     record.Title,
			Room:      record.Room,
			Start:     scheduler.TimeOfDay(record.Start),
			Duration:  record.Duration,
			Capacity:  record.Capacity,
			Hosts:     slices.Clone(record.Hosts),
			Attendees: slices.Clone(record.Attendees),
		})
	}
	return events
}
