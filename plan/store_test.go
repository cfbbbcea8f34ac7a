package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type memBackend struct {
	data   []byte
	writes int
	err    error
}

func (m *memBackend) Read(context.Context) ([]byte, error) { return m.data, m.err }

func (m *memBackend) Write(_ context.Context, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memBackend) String() string { return "memory" }

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	s := NewStore(&memBackend{})

	first, err := s.GetOrCreate("2024-05-01", "Intro to embeddings")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.Status != StatusPending {
		t.Fatalf("new entry status = %q, want pending", first.Status)
	}

	second, err := s.GetOrCreate("2024-05-01", "Something else")
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if first != second {
		t.Fatal("second call returned a different entry")
	}
	if second.Topic != "Intro to embeddings" {
		t.Fatalf("topic overwritten: %q", second.Topic)
	}
	if got := len(s.Entries()); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}

func TestGetOrCreate_RejectsBadInput(t *testing.T) {
	s := NewStore(&memBackend{})
	if _, err := s.GetOrCreate("05/01/2024", "topic"); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if _, err := s.GetOrCreate("2024-05-01", "   "); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestTransition_HappyPath(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(&memBackend{}, fixedClock(now))
	if _, err := s.GetOrCreate("2024-05-01", "RAG basics"); err != nil {
		t.Fatal(err)
	}

	if err := s.Transition("2024-05-01", StatusInProgress, TransitionOpts{}); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	e, _ := s.Get("2024-05-01")
	if e.Attempts != 1 || !e.StartedAt.Equal(now) {
		t.Fatalf("attempts=%d started_at=%v", e.Attempts, e.StartedAt)
	}

	if err := s.Transition("2024-05-01", StatusCompleted, TransitionOpts{RemoteID: "vid123", ShortID: "short9"}); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if e.RemoteID != "vid123" || e.ShortID != "short9" || e.ErrorDetail != "" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestTransition_CompletedIsTerminal(t *testing.T) {
	s := NewStore(&memBackend{})
	mustCreate(t, s, "2024-05-01")
	mustTransition(t, s, "2024-05-01", StatusInProgress, TransitionOpts{})
	mustTransition(t, s, "2024-05-01", StatusCompleted, TransitionOpts{RemoteID: "abc"})

	for _, to := range []Status{StatusPending, StatusInProgress, StatusFailed} {
		err := s.Transition("2024-05-01", to, TransitionOpts{ErrorDetail: "x"})
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("completed -> %s: err = %v, want InvalidTransitionError", to, err)
		}
	}
	e, _ := s.Get("2024-05-01")
	if e.Status != StatusCompleted || e.RemoteID != "abc" {
		t.Fatalf("entry changed after rejected transitions: %+v", e)
	}
}

func TestTransition_EnforcesFieldInvariants(t *testing.T) {
	s := NewStore(&memBackend{})
	mustCreate(t, s, "2024-05-01")
	mustTransition(t, s, "2024-05-01", StatusInProgress, TransitionOpts{})

	if err := s.Transition("2024-05-01", StatusCompleted, TransitionOpts{}); err == nil {
		t.Fatal("completed without remote_id should fail")
	}
	if err := s.Transition("2024-05-01", StatusFailed, TransitionOpts{}); err == nil {
		t.Fatal("failed without error_detail should fail")
	}

	mustTransition(t, s, "2024-05-01", StatusFailed, TransitionOpts{ErrorDetail: "quota exceeded"})
	if err := s.Transition("2024-05-01", StatusPending, TransitionOpts{RemoteID: "nope"}); err == nil {
		t.Fatal("remote_id on pending should fail")
	}

	if err := s.Transition("2024-05-01", StatusPending, TransitionOpts{ErrorDetail: "still broken"}); err == nil {
		t.Fatal("error_detail on pending should fail")
	}

	mustTransition(t, s, "2024-05-01", StatusPending, TransitionOpts{})
	if err := s.Transition("2024-05-01", StatusInProgress, TransitionOpts{ErrorDetail: "leftover"}); err == nil {
		t.Fatal("error_detail on in_progress should fail")
	}
	e, _ := s.Get("2024-05-01")
	if e.ErrorDetail != "" {
		t.Fatalf("error_detail not cleared on retry: %q", e.ErrorDetail)
	}
}

func TestTransition_MissingEntry(t *testing.T) {
	s := NewStore(&memBackend{})
	err := s.Transition("2024-05-01", StatusInProgress, TransitionOpts{})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
}

func TestSaveLoad_RoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content_plan.json")
	ctx := context.Background()

	s := NewStore(NewFileBackend(path))
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	mustCreate(t, s, "2024-05-01")
	mustTransition(t, s, "2024-05-01", StatusInProgress, TransitionOpts{})
	mustTransition(t, s, "2024-05-01", StatusCompleted, TransitionOpts{RemoteID: "vid1"})
	mustCreate(t, s, "2024-05-02")
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewStore(NewFileBackend(path))
	entries, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries["2024-05-01"]; got.Status != StatusCompleted || got.RemoteID != "vid1" {
		t.Fatalf("2024-05-01 = %+v", got)
	}
	if got := entries["2024-05-02"]; got.Status != StatusPending || got.Topic == "" {
		t.Fatalf("2024-05-02 = %+v", got)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `"remote_id": ""`) {
		t.Fatal("empty remote_id should be omitted")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".content-plan-tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestLoad_EmptyPlan(t *testing.T) {
	for _, body := range []string{"", "  \n", "{}", "null"} {
		s := NewStore(&memBackend{data: []byte(body)})
		entries, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load(%q): %v", body, err)
		}
		if len(entries) != 0 {
			t.Fatalf("Load(%q) = %d entries", body, len(entries))
		}
		if _, err := s.GetOrCreate("2024-05-01", "topic"); err != nil {
			t.Fatalf("GetOrCreate after Load(%q): %v", body, err)
		}
	}
}

func TestLoad_CorruptPlan(t *testing.T) {
	tests := map[string]string{
		"invalid json":         `{"2024-05-01": `,
		"unknown status":       `{"2024-05-01": {"date": "2024-05-01", "status": "archived", "topic": "x"}}`,
		"completed without id": `{"2024-05-01": {"date": "2024-05-01", "status": "completed", "topic": "x"}}`,
		"failed without error": `{"2024-05-01": {"date": "2024-05-01", "status": "failed", "topic": "x"}}`,
		"key mismatch":         `{"2024-05-01": {"date": "2024-05-02", "status": "pending", "topic": "x"}}`,
		"null entry":           `{"2024-05-01": null}`,
		"missing topic":        `{"2024-05-01": {"date": "2024-05-01", "status": "pending"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewStore(&memBackend{data: []byte(body)})
			_, err := s.Load(context.Background())
			var corrupt *StorageCorruptError
			if !errors.As(err, &corrupt) {
				t.Fatalf("err = %v, want StorageCorruptError", err)
			}
			if corrupt.Source != "memory" {
				t.Fatalf("source = %q", corrupt.Source)
			}
		})
	}
}

func TestLoad_BackendError(t *testing.T) {
	boom := errors.New("disk on fire")
	s := NewStore(&memBackend{err: boom})
	_, err := s.Load(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped backend error", err)
	}
}

func TestTopics_IsCaseInsensitive(t *testing.T) {
	s := NewStore(&memBackend{})
	if _, err := s.GetOrCreate("2024-05-01", "Prompt Engineering"); err != nil {
		t.Fatal(err)
	}
	if !s.Topics()["prompt engineering"] {
		t.Fatalf("topics = %v", s.Topics())
	}
}

func TestRetryable_OldestEarlierFailedOrStale(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s := NewStore(&memBackend{}, WithClock(func() time.Time { return clock }))

	// 04-28 completed, 04-29 stale, 04-30 failed, 05-01 failed (not earlier)
	mustCreate(t, s, "2024-04-28")
	mustTransition(t, s, "2024-04-28", StatusInProgress, TransitionOpts{})
	mustTransition(t, s, "2024-04-28", StatusCompleted, TransitionOpts{RemoteID: "vid"})
	mustCreate(t, s, "2024-04-29")
	mustTransition(t, s, "2024-04-29", StatusInProgress, TransitionOpts{})
	mustCreate(t, s, "2024-04-30")
	mustTransition(t, s, "2024-04-30", StatusInProgress, TransitionOpts{})
	mustTransition(t, s, "2024-04-30", StatusFailed, TransitionOpts{ErrorDetail: "quota exceeded"})
	mustCreate(t, s, "2024-05-01")
	mustTransition(t, s, "2024-05-01", StatusInProgress, TransitionOpts{})
	mustTransition(t, s, "2024-05-01", StatusFailed, TransitionOpts{ErrorDetail: "quota exceeded"})

	e, ok := s.Retryable("2024-05-01", base.Add(25*time.Hour), 24*time.Hour)
	if !ok || e.Date != "2024-04-29" {
		t.Fatalf("Retryable = %+v, %v; want the stale 2024-04-29 entry", e, ok)
	}

	e, ok = s.Retryable("2024-05-01", base.Add(time.Hour), 24*time.Hour)
	if !ok || e.Date != "2024-04-30" {
		t.Fatalf("Retryable = %+v, %v; want the failed 2024-04-30 entry", e, ok)
	}

	if e, ok := s.Retryable("2024-04-29", base.Add(25*time.Hour), 24*time.Hour); ok {
		t.Fatalf("Retryable before 2024-04-29 = %+v, want none", e)
	}
}

func TestEntry_IsStale(t *testing.T) {
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	e := Entry{Status: StatusInProgress, StartedAt: started}

	if e.IsStale(started.Add(time.Hour), 24*time.Hour) {
		t.Fatal("one hour old run should not be stale")
	}
	if !e.IsStale(started.Add(25*time.Hour), 24*time.Hour) {
		t.Fatal("25 hour old run should be stale")
	}
	e.Status = StatusPending
	if e.IsStale(started.Add(48*time.Hour), 24*time.Hour) {
		t.Fatal("only in_progress entries can be stale")
	}
}

func mustCreate(t *testing.T, s *Store, date string) {
	t.Helper()
	if _, err := s.GetOrCreate(date, "topic for "+date); err != nil {
		t.Fatalf("GetOrCreate(%s): %v", date, err)
	}
}

func mustTransition(t *testing.T, s *Store, date string, to Status, opts TransitionOpts) {
	t.Helper()
	if err := s.Transition(date, to, opts); err != nil {
		t.Fatalf("Transition(%s, %s): %v", date, to, err)
	}
}
