package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// Gate authorizes the acting user before every mutating engine call. The
// acting user is passed explicitly on each call; the gate keeps no session.
type Gate struct {
	events *EventService
	users  *UserService
	logger *slog.Logger
}

// NewGate wraps the engine and the user registry. users may be nil when
// account management is not offered.
func NewGate(events *EventService, users *UserService, logger *slog.Logger) *Gate {
	return &Gate{events: events, users: users, logger: defaultLogger(logger)}
}

// Events exposes the engine for read-only queries, which need no capability.
func (g *Gate) Events() *EventService {
	return g.events
}

// Users exposes the registry for lookups.
func (g *Gate) Users() *UserService {
	return g.users
}

// Authorize checks actor for capability and logs denials. With a registry
// configured the stored account decides, so a ban or role change applies to
// user values held from before it; unregistered actors are denied.
func (g *Gate) Authorize(ctx context.Context, actor access.User, capability access.Capability) error {
	current, err := g.currentActor(ctx, actor)
	if err == nil {
		err = access.Authorize(current, capability)
	}
	if err != nil {
		logger := serviceLogger(ctx, g.logger, "Gate", "Authorize", "actor_id", actor.ID, "capability", string(capability))
		return logFailure(ctx, logger, "permission denied", err)
	}
	return nil
}

func (g *Gate) currentActor(ctx context.Context, actor access.User) (access.User, error) {
	if g.users == nil {
		return actor, nil
	}
	stored, err := g.users.GetUser(ctx, actor.ID)
	if errors.Is(err, ErrNotFound) {
		return access.User{}, fmt.Errorf("actor %q is not registered: %w", actor.ID, ErrPermissionDenied)
	}
	if err != nil {
		return access.User{}, err
	}
	return stored, nil
}

// ScheduleEvent requires CanSchedule.
func (g *Gate) ScheduleEvent(ctx context.Context, actor access.User, input EventInput) (EventView, error) {
	if err := g.Authorize(ctx, actor, access.CanSchedule); err != nil {
		return EventView{}, err
	}
	return g.events.ScheduleEvent(ctx, input)
}

// RescheduleEvent requires CanSchedule.
func (g *Gate) RescheduleEvent(ctx context.Context, actor access.User, index int, start scheduler.TimeOfDay, duration int) (EventView, error) {
	if err := g.Authorize(ctx, actor, access.CanSchedule); err != nil {
		return EventView{}, err
	}
	return g.events.RescheduleEvent(ctx, index, start, duration)
}

// CancelEvent requires CanSchedule.
func (g *Gate) CancelEvent(ctx context.Context, actor access.User, index int) (EventView, error) {
	if err := g.Authorize(ctx, actor, access.CanSchedule); err != nil {
		return EventView{}, err
	}
	return g.events.CancelEvent(ctx, index)
}

// RegisterAttendee requires CanSignUpEvent when actor registers itself and
// CanSchedule when registering someone else.
func (g *Gate) RegisterAttendee(ctx context.Context, actor access.User, userID string, index int) (EventView, error) {
	if err := g.Authorize(ctx, actor, attendeeCapability(actor, userID)); err != nil {
		return EventView{}, err
	}
	return g.events.RegisterAttendee(ctx, userID, index)
}

// RemoveAttendee follows the same capability split as RegisterAttendee.
func (g *Gate) RemoveAttendee(ctx context.Context, actor access.User, userID string, index int) (EventView, error) {
	if err := g.Authorize(ctx, actor, attendeeCapability(actor, userID)); err != nil {
		return EventView{}, err
	}
	return g.events.RemoveAttendee(ctx, userID, index)
}

// Stats requires CanViewStats.
func (g *Gate) Stats(ctx context.Context, actor access.User) (Stats, error) {
	if err := g.Authorize(ctx, actor, access.CanViewStats); err != nil {
		return Stats{}, err
	}
	return g.events.Stats(ctx), nil
}

// CreateUser requires CanSignUpUser.
func (g *Gate) CreateUser(ctx context.Context, actor access.User, input UserInput) (access.User, error) {
	if g.users == nil {
		return access.User{}, fmt.Errorf("user registry not configured")
	}
	if err := g.Authorize(ctx, actor, access.CanSignUpUser); err != nil {
		return access.User{}, err
	}
	return g.users.CreateUser(ctx, input)
}

// SetBanned requires CanSignUpUser. Actors cannot ban themselves.
func (g *Gate) SetBanned(ctx context.Context, actor access.User, userID string, banned bool) (access.User, error) {
	if g.users == nil {
		return access.User{}, fmt.Errorf("user registry not configured")
	}
	if err := g.Authorize(ctx, actor, access.CanSignUpUser); err != nil {
		return access.User{}, err
	}
	if actor.ID == userID && banned {
		vErr := &ValidationError{}
		vErr.add("user_id", "users cannot ban themselves")
		return access.User{}, vErr
	}
	return g.users.SetBanned(ctx, userID, banned)
}

func attendeeCapability(actor access.User, userID string) access.Capability {
	if actor.ID == userID {
		return access.CanSignUpEvent
	}
	return access.CanSchedule
}
