package plan

// Status is the production state of one day's entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {},
	StatusFailed: {
		StatusPending: true, // retried by the next scheduled run
	},
}

func IsKnownStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return IsKnownStatus(s) && len(allowedTransitions[s]) == 0
}
