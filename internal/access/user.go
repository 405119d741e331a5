package access

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned when the acting user lacks a capability.
var ErrPermissionDenied = errors.New("access: permission denied")

// User is the acting principal for gated operations. Permissions are derived
// from Role when the user is built and are not changed afterwards.
type User struct {
	ID          string
	Username    string
	Name        string
	Role        Role
	Permissions Permissions
	Banned      bool
}

// NewUser builds a user carrying the permission template of role.
func NewUser(id, username, name string, role Role) User {
	return User{
		ID:          id,
		Username:    username,
		Name:        name,
		Role:        role,
		Permissions: PermissionsFor(role),
	}
}

// Can reports whether the user holds the capability.
func (u User) Can(capability Capability) bool {
	return u.Permissions.Has(capability)
}

// DisplayName returns the name shown to other users.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Authorize checks that user may exercise capability. Banned users are denied
// every capability.
func Authorize(user User, capability Capability) error {
	if user.Banned {
		return fmt.Errorf("%w: user %s is banned", ErrPermissionDenied, user.ID)
	}
	if !user.Can(capability) {
		return fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, user.Role, capability)
	}
	return nil
}
