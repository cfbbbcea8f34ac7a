package plan

import (
	"fmt"
	"time"
)

// DateLayout is the key format of the content plan.
const DateLayout = "2006-01-02"

// Entry records what was produced for one calendar date.
type Entry struct {
	Date        string    `json:"date"`
	Status      Status    `json:"status"`
	Topic       string    `json:"topic"`
	RemoteID    string    `json:"remote_id,omitempty"`
	ShortID     string    `json:"short_id,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// IsStale reports whether an in_progress entry was started more than after ago.
func (e Entry) IsStale(now time.Time, after time.Duration) bool {
	if e.Status != StatusInProgress {
		return false
	}
	started := e.StartedAt
	if started.IsZero() {
		started = e.UpdatedAt
	}
	return now.Sub(started) > after
}

// validate checks the per-entry invariants of a loaded entry.
func (e Entry) validate(key string) error {
	if e.Date != key {
		return fmt.Errorf("entry date %q stored under key %q", e.Date, key)
	}
	if _, err := time.Parse(DateLayout, key); err != nil {
		return fmt.Errorf("key %q is not a %s date", key, DateLayout)
	}
	if !IsKnownStatus(e.Status) {
		return fmt.Errorf("entry %s has unknown status %q", key, e.Status)
	}
	if e.Topic == "" {
		return fmt.Errorf("entry %s has no topic", key)
	}
	if (e.Status == StatusCompleted) != (e.RemoteID != "") {
		return fmt.Errorf("entry %s: remote_id must be set iff status is completed", key)
	}
	if (e.Status == StatusFailed) != (e.ErrorDetail != "") {
		return fmt.Errorf("entry %s: error_detail must be set iff status is failed", key)
	}
	return nil
}
