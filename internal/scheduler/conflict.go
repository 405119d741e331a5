package scheduler

// ConflictType describes why two events cannot share a time window.
type ConflictType string

const (
	// ConflictTypeRoom indicates the room is double-booked.
	ConflictTypeRoom ConflictType = "room"
	// ConflictTypeHost indicates a host is double-booked.
	ConflictTypeHost ConflictType = "host"
)

// Conflict details an existing event that overlaps the candidate.
type Conflict struct {
	With        *Event
	Types       []ConflictType
	SharedHosts []string
}

// DetectConflicts returns one Conflict for every existing event whose window
// overlaps the candidate's and that uses the same room or shares a host. An
// existing event carrying the candidate's ID is skipped so a moved event never
// conflicts with its own previous slot.
func DetectConflicts(existing []*Event, candidate *Event) []Conflict {
	var conflicts []Conflict
	start, end := candidate.Start, candidate.End()

	for _, event := range existing {
		if candidate.ID != "" && event.ID == candidate.ID {
			continue
		}
		if !Overlaps(start, end, event.Start, event.End()) {
			continue
		}

		var conflict Conflict
		if event.Room == candidate.Room {
			conflict.Types = append(conflict.Types, ConflictTypeRoom)
		}
		if shared := candidate.SharedHosts(event); len(shared) > 0 {
			conflict.Types = append(conflict.Types, ConflictTypeHost)
			conflict.SharedHosts = shared
		}
		if len(conflict.Types) == 0 {
			continue
		}
		conflict.With = event
		conflicts = append(conflicts, conflict)
	}

	return conflicts
}
