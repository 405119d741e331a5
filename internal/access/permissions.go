// Package access holds the role based permission matrix and the acting user
// value every gated operation is checked against.
package access

import (
	"fmt"
	"strings"
)

// Role identifies the kind of account a user holds.
type Role string

const (
	// RoleAttendee signs up for events.
	RoleAttendee Role = "attendee"
	// RoleSpeaker hosts talks.
	RoleSpeaker Role = "speaker"
	// RoleOrganizer schedules events and registers accounts.
	RoleOrganizer Role = "organizer"
	// RoleAdmin administers accounts and inspects statistics.
	RoleAdmin Role = "admin"
)

// Capability is a named permission flag gating one class of action.
type Capability string

const (
	CanBeMessaged     Capability = "can_be_messaged"
	CanMessageTalk    Capability = "can_message_talk"
	CanSchedule       Capability = "can_schedule"
	CanSignUpEvent    Capability = "can_sign_up_event"
	CanSignUpUser     Capability = "can_sign_up_user"
	CanSpeakAtTalk    Capability = "can_speak_at_talk"
	CanViewStats      Capability = "can_view_stats"
	CanSeeAllMessages Capability = "can_see_all_messages"
)

// Permissions maps capabilities to their granted state. A capability that is
// not present in the map is treated as not granted.
type Permissions map[Capability]bool

// Has reports whether the capability is granted.
func (p Permissions) Has(capability Capability) bool {
	return p[capability]
}

// Clone returns an independent copy of the permission set.
func (p Permissions) Clone() Permissions {
	out := make(Permissions, len(p))
	for capability, granted := range p {
		out[capability] = granted
	}
	return out
}

var templates = map[Role]Permissions{
	RoleAttendee: {
		CanBeMessaged:     true,
		CanMessageTalk:    false,
		CanSchedule:       false,
		CanSignUpEvent:    true,
		CanSignUpUser:     false,
		CanSpeakAtTalk:    false,
		CanViewStats:      false,
		CanSeeAllMessages: false,
	},
	RoleSpeaker: {
		CanBeMessaged:     true,
		CanMessageTalk:    true,
		CanSchedule:       false,
		CanSignUpEvent:    false,
		CanSignUpUser:     false,
		CanSpeakAtTalk:    true,
		CanViewStats:      false,
		CanSeeAllMessages: false,
	},
	RoleOrganizer: {
		CanBeMessaged:     true,
		CanMessageTalk:    true,
		CanSchedule:       true,
		CanSignUpEvent:    true,
		CanSignUpUser:     true,
		CanSpeakAtTalk:    false,
		CanViewStats:      false,
		CanSeeAllMessages: false,
	},
	RoleAdmin: {
		CanBeMessaged:     false,
		CanMessageTalk:    false,
		CanSchedule:       true,
		CanSignUpEvent:    false,
		CanSignUpUser:     true,
		CanSpeakAtTalk:    false,
		CanViewStats:      true,
		CanSeeAllMessages: true,
	},
}

// PermissionsFor returns a copy of the fixed permission template for role.
// Unknown roles receive an empty set, which denies everything.
func PermissionsFor(role Role) Permissions {
	template, ok := templates[role]
	if !ok {
		return Permissions{}
	}
	return template.Clone()
}

// Valid reports whether the role has a permission template.
func (r Role) Valid() bool {
	_, ok := templates[r]
	return ok
}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("access: unknown role %q", value)
	}
	return role, nil
}
