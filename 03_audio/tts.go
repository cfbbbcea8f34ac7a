package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"ai-course-pipeline/config"
	"ai-course-pipeline/shell"
	"ai-course-pipeline/types"
)

// Generator turns narration text into an audio track of known length.
type Generator struct {
	cfg    config.AudioConfig
	runner shell.CommandRunner
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.Config, runner shell.CommandRunner, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:    cfg.Audio,
		runner: runner,
		logger: logger.With().Str("stage", "audio").Logger(),
		sleep:  sleepCtx,
	}
}

// Narrate synthesizes text into dir and returns the narration track. The
// engine's MP3 is converted to a 44.1kHz stereo WAV for mixing; WAV files are
// intermediates removed after the run.
func (g *Generator) Narrate(ctx context.Context, format types.Format, text, dir string) (types.Narration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Narration{}, fmt.Errorf("%s narration is empty", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Narration{}, fmt.Errorf("create audio dir: %w", err)
	}

	mp3 := filepath.Join(dir, fmt.Sprintf("%s_narration.mp3", format))
	wav := filepath.Join(dir, fmt.Sprintf("%s_narration.wav", format))

	g.logger.Info().
		Str("format", string(format)).
		Str("engine", g.cfg.Engine).
		Int("words", len(strings.Fields(text))).
		Msg("generating narration")

	if err := g.synthesize(ctx, text, mp3); err != nil {
		return types.Narration{}, fmt.Errorf("%s TTS failed: %w", format, err)
	}

	args := ffmpeg.Input(mp3).
		Output(wav, ffmpeg.KwArgs{"ar": 44100, "ac": 2}).
		OverWriteOutput().
		GetArgs()
	if err := g.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return types.Narration{}, fmt.Errorf("convert narration to wav: %w", err)
	}

	dur, err := Duration(ctx, g.runner, wav)
	if err != nil {
		dur = estimateDuration(text)
		g.logger.Warn().Err(err).Float64("estimate_sec", dur).Msg("could not measure narration, using estimate")
	}

	g.logger.Info().Str("file", wav).Float64("duration_sec", dur).Msg("narration ready")
	return types.Narration{Format: format, Text: text, AudioFile: wav, DurationSec: dur}, nil
}

func (g *Generator) synthesize(ctx context.Context, text, outFile string) error {
	var name string
	var args []string
	switch g.cfg.Engine {
	case "gtts":
		name = "gtts-cli"
		args = []string{text, "--lang", g.cfg.Language, "--output", outFile}
	default:
		name = "edge-tts"
		args = []string{"--voice", g.cfg.Voice, "--text", text, "--write-media", outFile}
	}

	retries := max(g.cfg.Retries, 1)
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = g.runner.Run(ctx, name, args...)
		if err == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		g.logger.Warn().Err(err).Int("attempt", attempt).Msg("TTS attempt failed, retrying")
		if sleepErr := g.sleep(ctx, time.Duration(attempt)*2*time.Second); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Duration uses ffprobe to get the duration of a media file in seconds.
func Duration(ctx context.Context, runner shell.CommandRunner, file string) (float64, error) {
	out, err := runner.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	)
	if err != nil {
		return 0, err
	}
	var dur float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur); err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration for %s", file)
	}
	return dur, nil
}

// estimateDuration assumes ~150 spoken words per minute.
func estimateDuration(text string) float64 {
	return float64(len(strings.Fields(text))) / 150.0 * 60.0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
