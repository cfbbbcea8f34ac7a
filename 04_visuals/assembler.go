package visuals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/shell"
	"ai-course-pipeline/types"
)

// BackgroundKind says what the renderer should loop under the slides.
type BackgroundKind string

const (
	BackgroundVideo BackgroundKind = "video"
	BackgroundImage BackgroundKind = "image"
	BackgroundColor BackgroundKind = "color"
)

// Assets is everything the renderer needs for one format.
type Assets struct {
	Format         types.Format
	Width          int
	Height         int
	Slides         []string
	SlideDurations []float64
	Background     string
	BackgroundKind BackgroundKind
	BackgroundHex  string
	Captions       string
	Thumbnail      string
	Narration      types.Narration
}

// Assembler coordinates all visual preparation for the pipeline
type Assembler struct {
	cfg          *config.Config
	slides       *SlideRenderer
	pexels       *PexelsFetcher
	pollinations *PollinationsFetcher
	library      *BackgroundLibrary
	transcriber  *Transcriber
	logger       zerolog.Logger
}

func NewAssembler(cfg *config.Config, runner shell.CommandRunner, logger zerolog.Logger) *Assembler {
	style := SlideStyle{
		Background:     cfg.Visuals.BackgroundColor,
		TextColor:      cfg.Visuals.TextColor,
		Font:           cfg.Visuals.Font,
		TitlePointSize: cfg.Visuals.TitlePointSize,
		BodyPointSize:  cfg.Visuals.BodyPointSize,
	}
	var pollinations *PollinationsFetcher
	if cfg.Visuals.UsePollinations {
		pollinations = NewPollinationsFetcher()
	}
	a := &Assembler{
		cfg:          cfg,
		slides:       NewSlideRenderer(style, runner),
		pexels:       NewPexelsFetcher(cfg.Secrets.PexelsAPIKey, cfg.Visuals.PexelsPerPage),
		pollinations: pollinations,
		logger:       logger.With().Str("stage", "visuals").Logger(),
	}
	if cfg.Paths.Backgrounds != "" {
		lib, err := NewBackgroundLibrary(cfg.Paths.Backgrounds)
		if err != nil {
			a.logger.Warn().Err(err).Str("dir", cfg.Paths.Backgrounds).Msg("background library disabled")
		} else {
			a.library = lib
		}
	}
	if cfg.Render.CaptionEngine == "whisper" {
		a.transcriber = NewTranscriber(runner, cfg.Render.WhisperModel, cfg.Audio.Language, 42)
	}
	return a
}

// Prepare renders slides, the thumbnail, captions and fetches a background
// for the given format of content.
func (a *Assembler) Prepare(ctx context.Context, content *types.Content, format types.Format) (*Assets, error) {
	narration, err := narrationFor(content, format)
	if err != nil {
		return nil, err
	}
	res := a.cfg.Render.LongResolution
	if format == types.FormatShort {
		res = a.cfg.Render.ShortResolution
	}
	width, height, err := config.ParseResolution(res)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(content.RunDir, "visuals_"+string(format))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	assets := &Assets{
		Format:         format,
		Width:          width,
		Height:         height,
		BackgroundKind: BackgroundColor,
		BackgroundHex:  a.cfg.Visuals.BackgroundColor,
		Narration:      narration,
	}

	var slideReqs []types.VisualRequest
	for _, req := range content.Visuals {
		if req.Format != format {
			continue
		}
		switch req.Kind {
		case "slide":
			slideReqs = append(slideReqs, req)
		case "background":
			a.fetchBackground(ctx, req.Query, width, height, narration.DurationSec, dir, assets)
		case "thumbnail":
			thumb := filepath.Join(dir, "thumbnail.png")
			if err := a.slides.RenderThumbnail(ctx, req.Slide.Title, format, thumb); err != nil {
				return nil, err
			}
			assets.Thumbnail = thumb
		default:
			return nil, fmt.Errorf("unknown visual kind %q", req.Kind)
		}
	}
	if len(slideReqs) == 0 {
		return nil, fmt.Errorf("no slides requested for %s video", format)
	}

	assets.SlideDurations = slideDurations(slideReqs, narration.DurationSec)
	a.logger.Info().
		Str("format", string(format)).
		Int("slides", len(slideReqs)).
		Msg("rendering slides")
	for i, req := range slideReqs {
		out := filepath.Join(dir, fmt.Sprintf("slide_%02d.png", i+1))
		if err := a.slides.RenderSlide(ctx, req.Slide, i+1, len(slideReqs), width, height, out); err != nil {
			return nil, err
		}
		assets.Slides = append(assets.Slides, out)
	}

	if a.cfg.Render.BurnCaptions {
		words := a.cfg.Render.LongCaptionWords
		if format == types.FormatShort {
			words = a.cfg.Render.ShortCaptionWords
		}
		srt := filepath.Join(dir, "captions.srt")
		if a.transcriber != nil {
			if err := a.transcriber.Transcribe(ctx, narration.AudioFile, srt); err == nil {
				assets.Captions = srt
			} else {
				a.logger.Warn().Err(err).Msg("whisper captions failed, estimating timings")
			}
		}
		if assets.Captions == "" {
			captions := BuildCaptions(narration.Text, narration.DurationSec, words)
			if len(captions) > 0 {
				if err := WriteSRT(srt, captions); err != nil {
					return nil, fmt.Errorf("write captions: %w", err)
				}
				assets.Captions = srt
			}
		}
	}

	a.logger.Info().
		Str("format", string(format)).
		Str("background", string(assets.BackgroundKind)).
		Bool("captions", assets.Captions != "").
		Msg("visuals ready")
	return assets, nil
}

// fetchBackground tries the local library, Pexels, then Pollinations, and
// otherwise leaves the solid color in place. Failures here never fail the run.
func (a *Assembler) fetchBackground(ctx context.Context, query string, width, height int, duration float64, dir string, assets *Assets) {
	if a.library != nil {
		clip, err := a.library.Pick(query, filepath.Dir(dir))
		if err == nil {
			a.logger.Info().Str("clip", clip).Msg("background from library")
			assets.Background, assets.BackgroundKind = clip, BackgroundVideo
			return
		}
		a.logger.Info().Err(err).Msg("library has no clip, trying stock footage")
	}
	if a.cfg.Secrets.PexelsAPIKey != "" {
		out := filepath.Join(dir, "background.mp4")
		err := a.pexels.Fetch(ctx, query, width, height, duration, out)
		if err == nil {
			assets.Background, assets.BackgroundKind = out, BackgroundVideo
			return
		}
		a.logger.Warn().Err(err).Str("query", query).Msg("pexels background failed")
	}
	if a.pollinations != nil {
		out := filepath.Join(dir, "background.jpg")
		err := a.pollinations.Fetch(ctx, query, width, height, out)
		if err == nil {
			assets.Background, assets.BackgroundKind = out, BackgroundImage
			return
		}
		a.logger.Warn().Err(err).Str("query", query).Msg("pollinations background failed")
	}
	a.logger.Info().Msg("no background found, using solid color")
}

// slideDurations splits total across slides in proportion to the narration
// words each slide covers.
func slideDurations(reqs []types.VisualRequest, total float64) []float64 {
	var words int
	for _, r := range reqs {
		words += max(r.Words, 1)
	}
	durs := make([]float64, len(reqs))
	for i, r := range reqs {
		durs[i] = total * float64(max(r.Words, 1)) / float64(words)
	}
	return durs
}

func narrationFor(content *types.Content, format types.Format) (types.Narration, error) {
	if format == types.FormatShort {
		if content.Short == nil {
			return types.Narration{}, fmt.Errorf("content has no short narration")
		}
		return *content.Short, nil
	}
	return content.Long, nil
}
