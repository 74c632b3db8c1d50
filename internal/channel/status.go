package channel

// Status is the lifecycle state of the CommandRecord.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusError},
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether only a new publish can move s forward.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether from -> to is a legal step. Re-entering
// pending is never a transition: it only happens through a fresh publish.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
