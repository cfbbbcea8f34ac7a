package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ai-course-pipeline/01_topic"
	"ai-course-pipeline/02_script"
	"ai-course-pipeline/03_audio"
	"ai-course-pipeline/04_visuals"
	"ai-course-pipeline/05_render"
	"ai-course-pipeline/06_upload"
	"ai-course-pipeline/config"
	"ai-course-pipeline/credentials"
	"ai-course-pipeline/notify"
	"ai-course-pipeline/pipeline"
	"ai-course-pipeline/plan"
	"ai-course-pipeline/shell"
)

// app owns every long-lived client for one process.
type app struct {
	backend plan.Backend
	driver  *pipeline.Driver
	closers []func() error
	logger  zerolog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	creds := credentials.New(cfg, logger)
	if err := creds.Restore(); err != nil {
		return nil, fmt.Errorf("restore credentials: %w", err)
	}

	backend, closeBackend, err := plan.OpenBackend(ctx, cfg.Plan, cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("open content plan: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, closeBackend)

	locker, err := plan.OpenLocker(cfg.Plan, cfg.Secrets)
	if err != nil {
		return nil, err
	}

	gemini, err := script.NewGemini(ctx, cfg.Secrets.GoogleAPIKey, cfg.Script.GeminiModel, cfg.Script.Temperature)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gemini.Close)

	topics, err := topic.New(cfg, gemini, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	runner := shell.ExecCommandRunner{}
	for _, bin := range []string{"ffmpeg", "ffprobe", "convert"} {
		if !shell.LookPath(bin) {
			logger.Warn().Str("binary", bin).Msg("not found in PATH, rendering will fail")
		}
	}

	a.driver = pipeline.NewDriver(cfg, pipeline.Deps{
		Store:  plan.NewStore(backend),
		Locker: locker,
		Topics: topics,
		Generator: pipeline.NewStageGenerator(
			script.New(cfg, gemini, logger),
			audio.New(cfg, runner, logger),
			cfg.Render.ShortEnabled,
			logger,
		),
		Composer: pipeline.NewStageComposer(
			visuals.NewAssembler(cfg, runner, logger),
			render.New(cfg, runner, logger),
			logger,
		),
		Uploader: upload.New(cfg, creds, logger),
		Notifier: publisher,
	}, logger)
	return a, nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
