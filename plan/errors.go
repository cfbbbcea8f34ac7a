package plan

import "fmt"

// StorageCorruptError means the persisted plan could not be parsed or violates an invariant.
type StorageCorruptError struct {
	Source string
	Reason string
	Err    error
}

func (e *StorageCorruptError) Error() string {
	msg := fmt.Sprintf("content plan %s is corrupt: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageCorruptError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned when a status change violates the state machine.
// It always indicates a driver bug.
type InvalidTransitionError struct {
	Date   string
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid content plan transition for %s: %q -> %q", e.Date, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}
