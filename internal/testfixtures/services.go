package testfixtures

import (
	"context"
	"io"
	"log/slog"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/application"
)

// Services bundles a wired engine, registry and gate.
type Services struct {
	Users  *application.UserService
	Events *application.EventService
	Gate   *application.Gate
}

// ServiceFactory builds Services with deterministic identifiers.
type ServiceFactory struct {
	UserIDs  *IDGenerator
	EventIDs *IDGenerator
	Logger   *slog.Logger
	Options  []application.EventServiceOption
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory uses "user-N" and "event-N" ids and discards logs.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		UserIDs:  NewIDGenerator("user"),
		EventIDs: NewIDGenerator("event"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithLogger overrides the discarding logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if logger != nil {
			factory.Logger = logger
		}
	}
}

// WithEventServiceOptions appends engine options such as a recorder.
func WithEventServiceOptions(opts ...application.EventServiceOption) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Options = append(factory.Options, opts...)
	}
}

// Build wires a fresh registry, engine and gate.
func (f *ServiceFactory) Build() Services {
	users := application.NewUserService(f.UserIDs.NextFunc(), f.Logger)
	opts := append([]application.EventServiceOption{
		application.WithUserDirectory(users),
		application.WithLogger(f.Logger),
	}, f.Options...)
	events := application.NewEventService(f.EventIDs.NextFunc(), opts...)
	return Services{
		Users:  users,
		Events: events,
		Gate:   application.NewGate(events, users, f.Logger),
	}
}

// MustCreateUser registers username with role and panics on failure.
func (s Services) MustCreateUser(username string, role access.Role) access.User {
	user, err := s.Users.CreateUser(context.Background(), application.UserInput{Username: username, Name: username, Role: role})
	if err != nil {
		panic(err)
	}
	return user
}
