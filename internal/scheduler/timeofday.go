package scheduler

import (
	"fmt"
	"time"
)

// MinutesPerDay bounds every event window.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
// MinutesPerDay itself is a valid end of window ("24:00") but not a valid start.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("scheduler: invalid time of day %02d:%02d", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay is like NewTimeOfDay but panics on invalid input. Intended for
// constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses an "HH:MM" 24-hour clock value.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("scheduler: parse time of day %q: %w", value, err)
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute())
}

// Add returns the time shifted by minutes. The result is not wrapped at midnight.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// Valid reports whether t can start an event.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Overlaps reports whether the half-open windows [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

// MarshalText encodes the time as HH:MM.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	if t < 0 || t > MinutesPerDay {
		return nil, fmt.Errorf("scheduler: time of day %d out of range", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts the HH:MM form produced by MarshalText.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	if string(text) == "24:00" {
		*t = MinutesPerDay
		return nil
	}
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
