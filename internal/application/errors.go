package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/scheduler"
)

var (
	// ErrPermissionDenied is returned when the acting user lacks the capability for an operation.
	ErrPermissionDenied = access.ErrPermissionDenied
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrSchedulingConflict is matched by every *ConflictError.
	ErrSchedulingConflict = errors.New("application: scheduling conflict")

	ErrCapacityExceeded  = scheduler.ErrCapacityExceeded
	ErrAlreadyRegistered = scheduler.ErrAlreadyRegistered
	ErrNotRegistered     = scheduler.ErrNotRegistered
	ErrIndexOutOfRange   = scheduler.ErrIndexOutOfRange
)

// ConflictError reports every live event that blocks a schedule or reschedule
// request. The schedule is left unchanged when it is returned.
type ConflictError struct {
	Conflicts []ConflictView
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil || len(c.Conflicts) == 0 {
		return "scheduling conflict"
	}
	titles := make([]string, 0, len(c.Conflicts))
	for _, conflict := range c.Conflicts {
		titles = append(titles, fmt.Sprintf("%q (%s)", conflict.Event.Title, strings.Join(conflict.Reasons, "+")))
	}
	return fmt.Sprintf("scheduling conflict with %s", strings.Join(titles, ", "))
}

// Is lets errors.Is match ErrSchedulingConflict.
func (c *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field, msg := range v.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
