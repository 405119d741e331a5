package application

import (
	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// EventInput captures caller provided event fields.
type EventInput struct {
	Title    string
	Room     string
	Start    scheduler.TimeOfDay
	Duration int
	Capacity int
	HostIDs  []string
}

// EventView is the display-safe projection of an event handed to renderers.
type EventView struct {
	Index       int
	ID          string
	Title       string
	Room        string
	Start       scheduler.TimeOfDay
	End         scheduler.TimeOfDay
	Duration    int
	HostIDs     []string
	HostNames   []string
	AttendeeIDs []string
	Occupancy   int
	Capacity    int
}

// ConflictView describes one live event blocking a request.
type ConflictView struct {
	Event       EventView
	Reasons     []string
	SharedHosts []string
}

// Stats summarises the live schedule.
type Stats struct {
	LiveEvents     int
	FullEvents     int
	Rooms          int
	TotalCapacity  int
	TotalAttendees int
}

// UserInput captures caller provided account attributes.
type UserInput struct {
	Username string
	Name     string
	Role     access.Role
}
