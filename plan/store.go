package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TransitionOpts carries the fields that accompany a terminal status.
type TransitionOpts struct {
	RemoteID    string
	ShortID     string
	ErrorDetail string
}

// Store is the in-memory content plan backed by a Backend.
// It assumes a single writer between Load and Save.
type Store struct {
	backend Backend
	entries map[string]*Entry
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		entries: make(map[string]*Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory snapshot with the persisted one.
func (s *Store) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read content plan from %s: %w", s.backend, err)
	}

	entries, err := decode(data, s.backend.String())
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s.snapshot(), nil
}

// Get returns the entry for date, if any.
func (s *Store) Get(date string) (*Entry, bool) {
	e, ok := s.entries[date]
	return e, ok
}

// GetOrCreate returns the existing entry for date or inserts a pending one.
// topic is ignored when the entry already exists.
func (s *Store) GetOrCreate(date, topic string) (*Entry, error) {
	if e, ok := s.entries[date]; ok {
		return e, nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("content plan date %q: %w", date, err)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("content plan entry for %s needs a topic", date)
	}

	now := s.now()
	e := &Entry{
		Date:      date,
		Status:    StatusPending,
		Topic:     topic,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[date] = e
	return e, nil
}

// Transition moves the entry for date to status to, validating the state machine
// and the remote_id / error_detail invariants. Only the in-memory entry changes.
func (s *Store) Transition(date string, to Status, opts TransitionOpts) error {
	e, ok := s.entries[date]
	if !ok {
		return &InvalidTransitionError{Date: date, To: to, Reason: "no entry for date"}
	}
	if !CanTransition(e.Status, to) {
		return &InvalidTransitionError{Date: date, From: e.Status, To: to}
	}

	switch to {
	case StatusCompleted:
		if strings.TrimSpace(opts.RemoteID) == "" {
			return &InvalidTransitionError{Date: date, From: e.Status, To: to, Reason: "remote_id is required"}
		}
	case StatusFailed:
		if strings.TrimSpace(opts.ErrorDetail) == "" {
			return &InvalidTransitionError{Date: date, From: e.Status, To: to, Reason: "error_detail is required"}
		}
	}
	if to != StatusCompleted && (opts.RemoteID != "" || opts.ShortID != "") {
		return &InvalidTransitionError{Date: date, From: e.Status, To: to, Reason: "remote_id is only allowed when completed"}
	}
	if to != StatusFailed && opts.ErrorDetail != "" {
		return &InvalidTransitionError{Date: date, From: e.Status, To: to, Reason: "error_detail is only allowed when failed"}
	}

	now := s.now()
	e.Status = to
	e.UpdatedAt = now
	e.RemoteID = ""
	e.ShortID = ""
	e.ErrorDetail = ""

	switch to {
	case StatusInProgress:
		e.StartedAt = now
		e.Attempts++
	case StatusCompleted:
		e.RemoteID = opts.RemoteID
		e.ShortID = opts.ShortID
	case StatusFailed:
		e.ErrorDetail = opts.ErrorDetail
	}
	return nil
}

// Save writes the whole snapshot through the backend, which replaces the
// previous version atomically.
func (s *Store) Save(ctx context.Context) error {
	data, err := encode(s.entries)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write content plan to %s: %w", s.backend, err)
	}
	return nil
}

// Entries returns copies of all entries ordered by date.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Retryable returns the oldest entry dated before date that a new run should
// pick up again: failed, or in_progress for longer than staleAfter.
func (s *Store) Retryable(date string, now time.Time, staleAfter time.Duration) (*Entry, bool) {
	var oldest *Entry
	for d, e := range s.entries {
		if d >= date {
			continue
		}
		if e.Status != StatusFailed && !e.IsStale(now, staleAfter) {
			continue
		}
		if oldest == nil || d < oldest.Date {
			oldest = e
		}
	}
	return oldest, oldest != nil
}

// Topics returns the set of topics already assigned to any date. A failed
// entry keeps its topic because Retryable hands it back to a later run.
func (s *Store) Topics() map[string]bool {
	used := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		used[strings.ToLower(e.Topic)] = true
	}
	return used
}

func (s *Store) snapshot() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = *e
	}
	return out
}

func encode(entries map[string]*Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal content plan: %w", err)
	}
	return append(data, '\n'), nil
}

// decode parses a snapshot. Empty input is an empty plan.
func decode(data []byte, source string) (map[string]*Entry, error) {
	entries := make(map[string]*Entry)
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &StorageCorruptError{Source: source, Reason: "invalid JSON", Err: err}
	}
	if entries == nil {
		entries = make(map[string]*Entry)
	}
	for key, e := range entries {
		if e == nil {
			return nil, &StorageCorruptError{Source: source, Reason: fmt.Sprintf("entry %s is null", key)}
		}
		if err := e.validate(key); err != nil {
			return nil, &StorageCorruptError{Source: source, Reason: err.Error()}
		}
	}
	return entries, nil
}
