// Package pipeline runs one daily production cycle against the content plan.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/notify"
	"ai-course-pipeline/plan"
	"ai-course-pipeline/types"
)

// Run identifies one attempt at producing the video for a date.
type Run struct {
	ID    string
	Date  string
	Topic string
	Dir   string
}

// TopicSource picks the topic for a date that has no plan entry yet.
type TopicSource interface {
	Next(ctx context.Context, date string, used map[string]bool) (string, error)
}

// ContentGenerator turns a topic into lesson text, narration and visual requests.
type ContentGenerator interface {
	Generate(ctx context.Context, run Run) (*types.Content, error)
}

// VideoComposer renders the generated content into video files.
type VideoComposer interface {
	Compose(ctx context.Context, run Run, content *types.Content) (*types.Video, error)
}

// Uploader publishes the videos and returns their remote identifiers.
type Uploader interface {
	Upload(ctx context.Context, content *types.Content, video *types.Video) (types.UploadResult, error)
}

// Deps are the collaborators of a Driver. Locker and Notifier are optional.
type Deps struct {
	Store     *plan.Store
	Locker    plan.Locker
	Topics    TopicSource
	Generator ContentGenerator
	Composer  VideoComposer
	Uploader  Uploader
	Notifier  notify.Publisher
}

// Driver advances one date's plan entry through
// pending -> in_progress -> completed | failed.
type Driver struct {
	deps       Deps
	outputDir  string
	staleAfter time.Duration
	cleanup    []string
	now        func() time.Time
	newRunID   func() string
	logger     zerolog.Logger
}

func NewDriver(cfg *config.Config, deps Deps, logger zerolog.Logger) *Driver {
	if deps.Locker == nil {
		deps.Locker = plan.NopLocker{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Driver{
		deps:       deps,
		outputDir:  cfg.Paths.Output,
		staleAfter: cfg.Plan.StaleAfter,
		cleanup:    cfg.Paths.CleanupPatterns,
		now:        func() time.Time { return time.Now().UTC() },
		newRunID:   func() string { return uuid.NewString()[:8] },
		logger:     logger.With().Str("stage", "pipeline").Logger(),
	}
}

// Run produces and publishes the video for date unless the plan already
// records it as completed. When date has no entry yet, the oldest earlier
// entry that failed or went stale is retried under its own date instead.
// Collaborator failures are recorded on the entry and returned.
func (d *Driver) Run(ctx context.Context, date string) error {
	unlock, err := d.deps.Locker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			d.logger.Warn().Err(uerr).Msg("release run lock")
		}
	}()

	store := d.deps.Store
	if _, err := store.Load(ctx); err != nil {
		return err
	}

	entry, ok := store.Get(date)
	if !ok {
		if prev, found := store.Retryable(date, d.now(), d.staleAfter); found {
			d.logger.Info().
				Str("date", prev.Date).
				Str("requested", date).
				Str("status", string(prev.Status)).
				Msg("retrying earlier entry")
			entry, date, ok = prev, prev.Date, true
		}
	}
	if !ok {
		topic, err := d.deps.Topics.Next(ctx, date, store.Topics())
		if err != nil {
			return &GenerationError{Detail: "pick topic: " + detail(err), Err: err}
		}
		if entry, err = store.GetOrCreate(date, topic); err != nil {
			return err
		}
		d.logger.Info().Str("date", date).Str("topic", entry.Topic).Msg("new plan entry")
	}

	log := d.logger.With().Str("date", date).Str("topic", entry.Topic).Logger()
	if entry.Status == plan.StatusCompleted {
		log.Info().Str("remote_id", entry.RemoteID).Msg("already published, nothing to do")
		return nil
	}
	if err := d.recover(entry, log); err != nil {
		return err
	}

	if err := store.Transition(date, plan.StatusInProgress, plan.TransitionOpts{}); err != nil {
		return err
	}
	if err := store.Save(ctx); err != nil {
		return err
	}

	run := Run{ID: d.newRunID(), Date: date, Topic: entry.Topic}
	run.Dir = filepath.Join(d.outputDir, fmt.Sprintf("%s_%s", date, run.ID))
	if err := os.MkdirAll(run.Dir, 0o755); err != nil {
		return d.fail(ctx, run, &GenerationError{Detail: detail(err), Err: err}, nil)
	}
	log = log.With().Str("run_id", run.ID).Logger()
	log.Info().Str("dir", run.Dir).Int("attempt", entry.Attempts).Msg("run started")

	state := &types.RunState{
		RunID:     run.ID,
		Date:      date,
		Topic:     entry.Topic,
		StartedAt: d.now().Format(time.RFC3339),
	}
	defer d.cleanupRun(run, log)

	content, err := d.deps.Generator.Generate(ctx, run)
	if err != nil {
		return d.fail(ctx, run, classify(err, newGenerationError), state)
	}
	state.Content = content

	video, err := d.deps.Composer.Compose(ctx, run, content)
	if err != nil {
		return d.fail(ctx, run, classify(err, newCompositionError), state)
	}
	state.Video = video

	result, err := d.deps.Uploader.Upload(ctx, content, video)
	if err != nil {
		return d.fail(ctx, run, classify(err, newUploadError), state)
	}
	state.Upload = &result

	opts := plan.TransitionOpts{RemoteID: result.VideoID, ShortID: result.ShortID}
	if err := store.Transition(date, plan.StatusCompleted, opts); err != nil {
		return err
	}
	// the video is public now, so its id is recorded even if ctx was cancelled
	if err := store.Save(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("video %s uploaded but plan not saved: %w", result.VideoID, err)
	}

	log.Info().Str("remote_id", result.VideoID).Str("short_id", result.ShortID).Msg("run completed")
	d.finish(ctx, run, state)
	return nil
}

// recover moves a retryable entry back to pending. A fresh in_progress entry
// belongs to another run and is left untouched.
func (d *Driver) recover(entry *plan.Entry, log zerolog.Logger) error {
	store := d.deps.Store
	switch entry.Status {
	case plan.StatusFailed:
		log.Info().Str("previous_error", entry.ErrorDetail).Msg("retrying failed entry")
		return store.Transition(entry.Date, plan.StatusPending, plan.TransitionOpts{})
	case plan.StatusInProgress:
		if !entry.IsStale(d.now(), d.staleAfter) {
			return ErrRunInProgress
		}
		started := entry.StartedAt
		if started.IsZero() {
			started = entry.UpdatedAt
		}
		msg := fmt.Sprintf("stale run: in_progress since %s", started.Format(time.RFC3339))
		log.Warn().Time("started_at", started).Msg("recovering stale entry")
		if err := store.Transition(entry.Date, plan.StatusFailed, plan.TransitionOpts{ErrorDetail: msg}); err != nil {
			return err
		}
		return store.Transition(entry.Date, plan.StatusPending, plan.TransitionOpts{})
	}
	return nil
}

// fail records runErr on the entry and returns it, joined with any error
// from saving the plan.
func (d *Driver) fail(ctx context.Context, run Run, runErr error, state *types.RunState) error {
	d.logger.Error().Err(runErr).Str("date", run.Date).Str("run_id", run.ID).Msg("run failed")

	opts := plan.TransitionOpts{ErrorDetail: detailOf(runErr)}
	if err := d.deps.Store.Transition(run.Date, plan.StatusFailed, opts); err != nil {
		return errors.Join(runErr, err)
	}
	// the plan is saved even if ctx was cancelled mid-run
	if err := d.deps.Store.Save(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(runErr, err)
	}
	if state != nil {
		state.Error = runErr.Error()
		d.finish(ctx, run, state)
	}
	return runErr
}

func detailOf(err error) string {
	var (
		g *GenerationError
		c *CompositionError
		u *UploadError
	)
	switch {
	case errors.As(err, &g):
		return g.Detail
	case errors.As(err, &c):
		return c.Detail
	case errors.As(err, &u):
		return u.Detail
	}
	return detail(err)
}

// finish writes run_state.json and publishes the outcome. Neither can fail the run.
func (d *Driver) finish(ctx context.Context, run Run, state *types.RunState) {
	state.CompletedAt = d.now().Format(time.RFC3339)
	if data, err := json.MarshalIndent(state, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(run.Dir, "run_state.json"), data, 0o644); err != nil {
			d.logger.Warn().Err(err).Msg("could not write run state")
		}
	}

	ev := notify.Event{
		RunID:     run.ID,
		Date:      run.Date,
		Topic:     run.Topic,
		Error:     state.Error,
		Timestamp: d.now(),
	}
	if e, ok := d.deps.Store.Get(run.Date); ok {
		ev.Status = string(e.Status)
		ev.RemoteID = e.RemoteID
		ev.ShortID = e.ShortID
		ev.Attempts = e.Attempts
	}
	if err := d.deps.Notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		d.logger.Warn().Err(err).Msg("could not publish run event")
	}
}

// cleanupRun removes intermediates matching the cleanup patterns from the run dir.
func (d *Driver) cleanupRun(run Run, log zerolog.Logger) {
	removed := 0
	for _, pattern := range d.cleanup {
		matches, err := filepath.Glob(filepath.Join(run.Dir, pattern))
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("bad cleanup pattern")
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				log.Warn().Err(err).Str("file", m).Msg("cleanup failed")
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("files", removed).Msg("cleaned up intermediates")
	}
}
