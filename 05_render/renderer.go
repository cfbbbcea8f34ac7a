package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"ai-course-pipeline/04_visuals"
	"ai-course-pipeline/config"
	"ai-course-pipeline/shell"
	"ai-course-pipeline/types"
)

// Renderer assembles the final video from all prepared assets
type Renderer struct {
	cfg    *config.Config
	runner shell.CommandRunner
	logger zerolog.Logger
}

func New(cfg *config.Config, runner shell.CommandRunner, logger zerolog.Logger) *Renderer {
	return &Renderer{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("stage", "render").Logger(),
	}
}

// Render builds <format>_video.mp4 in outputDir: background + slides +
// captions, narration mixed with background music, then muxed for streaming.
func (r *Renderer) Render(ctx context.Context, assets *visuals.Assets, outputDir string) (types.VideoFile, error) {
	if len(assets.Slides) == 0 || len(assets.Slides) != len(assets.SlideDurations) {
		return types.VideoFile{}, fmt.Errorf("render %s: %d slides with %d durations", assets.Format, len(assets.Slides), len(assets.SlideDurations))
	}
	if assets.Narration.DurationSec <= 0 {
		return types.VideoFile{}, fmt.Errorf("render %s: narration has no duration", assets.Format)
	}
	r.logger.Info().Str("format", string(assets.Format)).Msg("starting video assembly")

	// Step 1: background, slides and captions into one silent video
	silent, err := r.composeVisuals(ctx, assets, outputDir)
	if err != nil {
		return types.VideoFile{}, fmt.Errorf("compose visuals: %w", err)
	}

	// Step 2: narration + background music
	mixed, err := r.mixAudio(ctx, assets, outputDir)
	if err != nil {
		r.logger.Warn().Err(err).Msg("music mix failed, using narration only")
		mixed = assets.Narration.AudioFile
	}

	// Step 3: mux into the final MP4
	final := filepath.Join(outputDir, fmt.Sprintf("%s_video.mp4", assets.Format))
	if err := r.combine(ctx, silent, mixed, final); err != nil {
		return types.VideoFile{}, fmt.Errorf("combine video+audio: %w", err)
	}

	r.logger.Info().
		Str("format", string(assets.Format)).
		Str("file", final).
		Float64("duration_sec", assets.Narration.DurationSec).
		Msg("video ready")
	return types.VideoFile{
		Format:        assets.Format,
		Path:          final,
		ThumbnailPath: assets.Thumbnail,
		DurationSec:   assets.Narration.DurationSec,
	}, nil
}

func (r *Renderer) composeVisuals(ctx context.Context, a *visuals.Assets, outputDir string) (string, error) {
	duration := seconds(a.Narration.DurationSec)
	size := fmt.Sprintf("%d:%d", a.Width, a.Height)

	var bg *ffmpeg.Stream
	switch a.BackgroundKind {
	case visuals.BackgroundVideo:
		bg = ffmpeg.Input(a.Background, ffmpeg.KwArgs{"stream_loop": -1, "t": duration}).Video()
	case visuals.BackgroundImage:
		bg = ffmpeg.Input(a.Background, ffmpeg.KwArgs{"loop": 1, "t": duration}).Video()
	default:
		source := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d", lavfiColor(a.BackgroundHex), a.Width, a.Height, r.cfg.Render.FPS)
		bg = ffmpeg.Input(source, ffmpeg.KwArgs{"f": "lavfi", "t": duration})
	}
	if a.BackgroundKind == visuals.BackgroundVideo || a.BackgroundKind == visuals.BackgroundImage {
		bg = bg.
			Filter("scale", ffmpeg.Args{size}, ffmpeg.KwArgs{"force_original_aspect_ratio": "increase"}).
			Filter("crop", ffmpeg.Args{size}).
			Filter("setsar", ffmpeg.Args{"1"})
	}

	slides := make([]*ffmpeg.Stream, len(a.Slides))
	for i, png := range a.Slides {
		slides[i] = ffmpeg.Input(png, ffmpeg.KwArgs{"loop": 1, "t": seconds(a.SlideDurations[i])}).
			Filter("scale", ffmpeg.Args{size}).
			Filter("setsar", ffmpeg.Args{"1"})
	}
	deck := ffmpeg.Concat(slides)

	video := bg.Overlay(deck, "repeat")
	if a.Captions != "" {
		video = video.Filter("subtitles", ffmpeg.Args{filepath.ToSlash(a.Captions)})
	}

	out := filepath.Join(outputDir, fmt.Sprintf("%s_visuals.mp4", a.Format))
	args := video.Output(out, ffmpeg.KwArgs{
		"c:v":     r.cfg.Render.VideoCodec,
		"preset":  r.cfg.Render.Preset,
		"pix_fmt": "yuv420p",
		"r":       r.cfg.Render.FPS,
		"t":       duration,
		"an":      "",
	}).OverWriteOutput().GetArgs()

	if err := r.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return "", err
	}
	return out, nil
}

// mixAudio lays the music under the narration, looped and trimmed to the
// narration length. It returns the narration unchanged when there is no music.
func (r *Renderer) mixAudio(ctx context.Context, a *visuals.Assets, outputDir string) (string, error) {
	music := r.cfg.Paths.Music
	if music == "" {
		return a.Narration.AudioFile, nil
	}
	if _, err := os.Stat(music); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info().Str("music", music).Msg("background music not found, skipping")
			return a.Narration.AudioFile, nil
		}
		return "", err
	}

	narration := ffmpeg.Input(a.Narration.AudioFile).Audio()
	bed := ffmpeg.Input(music, ffmpeg.KwArgs{"stream_loop": -1}).Audio().
		Filter("volume", ffmpeg.Args{fmt.Sprintf("%.2f", r.cfg.Visuals.MusicVolume)})
	mixed := ffmpeg.Filter([]*ffmpeg.Stream{narration, bed}, "amix", ffmpeg.Args{}, ffmpeg.KwArgs{
		"inputs":    2,
		"duration":  "first",
		"normalize": 0,
	})

	out := filepath.Join(outputDir, fmt.Sprintf("%s_audio_mixed.wav", a.Format))
	args := mixed.Output(out).OverWriteOutput().GetArgs()
	if err := r.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Renderer) combine(ctx context.Context, videoFile, audioFile, outFile string) error {
	v := ffmpeg.Input(videoFile).Video()
	a := ffmpeg.Input(audioFile).Audio()
	args := ffmpeg.Output([]*ffmpeg.Stream{v, a}, outFile, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      r.cfg.Render.AudioCodec,
		"b:a":      r.cfg.Render.AudioBitrate,
		"shortest": "",
		"movflags": "+faststart",
	}).OverWriteOutput().GetArgs()
	return r.runner.Run(ctx, "ffmpeg", args...)
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// lavfiColor turns "#rrggbb" into the 0x form the color source accepts.
func lavfiColor(c string) string {
	if c == "" {
		return "black"
	}
	if strings.HasPrefix(c, "#") {
		return "0x" + c[1:]
	}
	return c
}
