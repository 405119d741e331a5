// Package seed applies YAML seed plans to the engine through the Gate, so a
// plan can do no more than its acting user is allowed to.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// Plan lists accounts to create and events to schedule, in order.
type Plan struct {
	Users  []UserSpec  `yaml:"users"`
	Events []EventSpec `yaml:"events"`
}

// UserSpec describes one account. Existing usernames are reused.
type UserSpec struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// EventSpec describes one event. Hosts and Attendees are usernames.
type EventSpec struct {
	Title     string   `yaml:"title"`
	Room      string   `yaml:"room"`
	Start     string   `yaml:"start"`
	Duration  int      `yaml:"duration"`
	Capacity  int      `yaml:"capacity"`
	Hosts     []string `yaml:"hosts"`
	Attendees []string `yaml:"attendees"`
}

// Failure records one plan item the engine rejected.
type Failure struct {
	Item string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Item, f.Err)
}

// Result summarises an applied plan. Rejected items do not stop the plan.
type Result struct {
	UsersCreated    []string
	UsersReused     []string
	EventsScheduled []application.EventView
	Registrations   int
	Failures        []Failure
}

// Parse decodes a plan and rejects unknown fields.
func Parse(r io.Reader) (Plan, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var plan Plan
	if err := decoder.Decode(&plan); err != nil {
		if errors.Is(err, io.EOF) {
			return Plan{}, nil
		}
		return Plan{}, fmt.Errorf("seed: decode plan: %w", err)
	}
	return plan, nil
}

// LoadFile parses the plan stored at path.
func LoadFile(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plan{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Apply creates the plan's users, schedules its events and registers their
// attendees, all as actor. Only a failure to resolve the gate's registry is
// returned as an error; rejected items are collected in Result.Failures.
func Apply(ctx context.Context, gate *application.Gate, actor access.User, plan Plan) (Result, error) {
	users := gate.Users()
	if users == nil {
		return Result{}, fmt.Errorf("seed: gate has no user registry")
	}

	var result Result
	for _, spec := range plan.Users {
		item := "user " + spec.Username
		if existing, err := users.GetUserByUsername(ctx, spec.Username); err == nil {
			result.UsersReused = append(result.UsersReused, existing.Username)
			continue
		}

		role, err := access.ParseRole(spec.Role)
		if err != nil {
			result.fail(item, err)
			continue
		}
		created, err := gate.CreateUser(ctx, actor, application.UserInput{Username: spec.Username, Name: spec.Name, Role: role})
		if err != nil {
			result.fail(item, err)
			continue
		}
		result.UsersCreated = append(result.UsersCreated, created.Username)
	}

	for _, spec := range plan.Events {
		item := "event " + spec.Title
		start, err := scheduler.ParseTimeOfDay(spec.Start)
		if err != nil {
			result.fail(item, err)
			continue
		}
		hostIDs, err := resolveUsernames(ctx, users, spec.Hosts)
		if err != nil {
			result.fail(item, err)
			continue
		}

		view, err := gate.ScheduleEvent(ctx, actor, application.EventInput{
			Title:    spec.Title,
			Room:     spec.Room,
			Start:    start,
			Duration: spec.Duration,
			Capacity: spec.Capacity,
			HostIDs:  hostIDs,
		})
		if err != nil {
			result.fail(item, err)
			continue
		}
		result.EventsScheduled = append(result.EventsScheduled, view)

		for _, username := range spec.Attendees {
			if err := register(ctx, gate, actor, view.ID, username); err != nil {
				result.fail(fmt.Sprintf("%s attendee %s", item, username), err)
				continue
			}
			result.Registrations++
		}
	}

	return result, nil
}

// register resolves the event position at call time since earlier items may
// have shifted it.
func register(ctx context.Context, gate *application.Gate, actor access.User, eventID, username string) error {
	user, err := gate.Users().GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	index, err := gate.Events().FindEventIndex(ctx, eventID)
	if err != nil {
		return err
	}
	_, err = gate.RegisterAttendee(ctx, actor, user.ID, index)
	return err
}

func resolveUsernames(ctx context.Context, users *application.UserService, usernames []string) ([]string, error) {
	ids := make([]string, 0, len(usernames))
	for _, username := range usernames {
		user, err := users.GetUserByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", strings.TrimSpace(username), err)
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

func (r *Result) fail(item string, err error) {
	r.Failures = append(r.Failures, Failure{Item: item, Err: err})
}
