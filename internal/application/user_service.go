package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/conference-scheduler/internal/access"
)

// UserService is the in-memory account registry. Usernames are unique.
type UserService struct {
	mu          sync.RWMutex
	users       map[string]access.User
	idGenerator func() string
	logger      *slog.Logger
}

// NewUserService wires an empty registry. A nil idGenerator falls back to random UUIDs.
func NewUserService(idGenerator func() string, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &UserService{
		users:       make(map[string]access.User),
		idGenerator: idGenerator,
		logger:      defaultLogger(logger),
	}
}

// CreateUser registers a new account carrying the permission template of its role.
func (s *UserService) CreateUser(ctx context.Context, input UserInput) (access.User, error) {
	if s == nil {
		return access.User{}, fmt.Errorf("UserService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "CreateUser", "username", input.Username, "role", string(input.Role))

	username := strings.TrimSpace(input.Username)
	vErr := &ValidationError{}
	if username == "" {
		vErr.add("username", "username is required")
	}
	if !input.Role.Valid() {
		vErr.add("role", fmt.Sprintf("unknown role %q", input.Role))
	}
	if vErr.HasErrors() {
		return access.User{}, logFailure(ctx, logger, "user rejected", vErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findByUsernameLocked(username); ok {
		return access.User{}, logFailure(ctx, logger, "user rejected", fmt.Errorf("username %s: %w", username, ErrAlreadyExists))
	}

	user := access.NewUser(s.idGenerator(), username, strings.TrimSpace(input.Name), input.Role)
	s.users[user.ID] = user

	logger.Info("user created", "user_id", user.ID)
	return cloneUser(user), nil
}

// GetUser returns the account with id.
func (s *UserService) GetUser(_ context.Context, id string) (access.User, error) {
	if s == nil {
		return access.User{}, fmt.Errorf("UserService is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return access.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return cloneUser(user), nil
}

// LookupUser implements UserDirectory.
func (s *UserService) LookupUser(ctx context.Context, id string) (access.User, error) {
	return s.GetUser(ctx, id)
}

// GetUserByUsername returns the account with username.
func (s *UserService) GetUserByUsername(_ context.Context, username string) (access.User, error) {
	if s == nil {
		return access.User{}, fmt.Errorf("UserService is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.findByUsernameLocked(strings.TrimSpace(username))
	if !ok {
		return access.User{}, fmt.Errorf("username %s: %w", username, ErrNotFound)
	}
	return cloneUser(user), nil
}

// ListUsers returns every account ordered by username.
func (s *UserService) ListUsers(_ context.Context) []access.User {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]access.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users
}

// SetBanned toggles the ban flag of the account with id.
func (s *UserService) SetBanned(ctx context.Context, id string, banned bool) (access.User, error) {
	if s == nil {
		return access.User{}, fmt.Errorf("UserService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "SetBanned", "user_id", id, "banned", banned)

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return access.User{}, logFailure(ctx, logger, "ban update rejected", fmt.Errorf("user %s: %w", id, ErrNotFound))
	}
	user.Banned = banned
	s.users[id] = user

	logger.Info("ban status updated")
	return cloneUser(user), nil
}

// Snapshot returns every account ordered by username.
func (s *UserService) Snapshot() []access.User {
	return s.ListUsers(context.Background())
}

// Restore replaces the registry. Permissions are rebuilt from each role so
// stored data cannot widen them.
func (s *UserService) Restore(users []access.User) error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}

	restored := make(map[string]access.User, len(users))
	usernames := make(map[string]struct{}, len(users))
	for i, user := range users {
		vErr := &ValidationError{}
		if user.ID == "" {
			vErr.add("id", "id is required")
		} else if _, dup := restored[user.ID]; dup {
			vErr.add("id", "duplicate user id")
		}
		if _, dup := usernames[user.Username]; dup || user.Username == "" {
			vErr.add("username", "username must be present and unique")
		}
		if !user.Role.Valid() {
			vErr.add("role", fmt.Sprintf("unknown role %q", user.Role))
		}
		if vErr.HasErrors() {
			return fmt.Errorf("restore user %d: %w", i, vErr)
		}

		rebuilt := access.NewUser(user.ID, user.Username, user.Name, user.Role)
		rebuilt.Banned = user.Banned
		restored[user.ID] = rebuilt
		usernames[user.Username] = struct{}{}
	}

	s.mu.Lock()
	s.users = restored
	s.mu.Unlock()
	return nil
}

func (s *UserService) findByUsernameLocked(username string) (access.User, bool) {
	for _, user := range s.users {
		if user.Username == username {
			return user, true
		}
	}
	return access.User{}, false
}

func cloneUser(user access.User) access.User {
	user.Permissions = user.Permissions.Clone()
	return user
}
