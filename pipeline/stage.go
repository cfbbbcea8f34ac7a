package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"ai-course-pipeline/02_script"
	"ai-course-pipeline/04_visuals"
	"ai-course-pipeline/types"
)

// LessonWriter produces and lays out the lesson text.
type LessonWriter interface {
	Write(ctx context.Context, topic string) (*types.LessonContent, error)
	LongSegments(lesson *types.LessonContent, date string) []script.Segment
	ShortNarration(lesson *types.LessonContent) string
	ShortSlide(lesson *types.LessonContent) types.Slide
}

// Narrator synthesizes a voiceover into dir.
type Narrator interface {
	Narrate(ctx context.Context, format types.Format, text, dir string) (types.Narration, error)
}

// StageGenerator is the ContentGenerator built from the script and audio stages.
type StageGenerator struct {
	writer       LessonWriter
	narrator     Narrator
	shortEnabled bool
	logger       zerolog.Logger
}

func NewStageGenerator(writer LessonWriter, narrator Narrator, shortEnabled bool, logger zerolog.Logger) *StageGenerator {
	return &StageGenerator{
		writer:       writer,
		narrator:     narrator,
		shortEnabled: shortEnabled,
		logger:       logger.With().Str("stage", "generate").Logger(),
	}
}

func (g *StageGenerator) Generate(ctx context.Context, run Run) (*types.Content, error) {
	// Step 1: lesson text
	lesson, err := g.writer.Write(ctx, run.Topic)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	// Step 2: long-form narration over intro, content and outro slides
	segs := g.writer.LongSegments(lesson, run.Date)
	long, err := g.narrator.Narrate(ctx, types.FormatLong, script.JoinNarration(segs), run.Dir)
	if err != nil {
		return nil, fmt.Errorf("long narration: %w", err)
	}

	content := &types.Content{
		Date:   run.Date,
		RunDir: run.Dir,
		Lesson: *lesson,
		Long:   long,
	}
	for _, s := range segs {
		content.Visuals = append(content.Visuals, types.VisualRequest{
			Kind:   "slide",
			Format: types.FormatLong,
			Slide:  s.Slide,
			Words:  len(strings.Fields(s.Narration)),
		})
	}
	content.Visuals = append(content.Visuals,
		types.VisualRequest{Kind: "background", Format: types.FormatLong, Query: lesson.Topic},
		types.VisualRequest{Kind: "thumbnail", Format: types.FormatLong, Slide: types.Slide{Title: lesson.Title}},
	)

	// Step 3: the companion Short
	if g.shortEnabled {
		text := g.writer.ShortNarration(lesson)
		short, err := g.narrator.Narrate(ctx, types.FormatShort, text, run.Dir)
		if err != nil {
			return nil, fmt.Errorf("short narration: %w", err)
		}
		content.Short = &short
		content.Visuals = append(content.Visuals,
			types.VisualRequest{Kind: "slide", Format: types.FormatShort, Slide: g.writer.ShortSlide(lesson), Words: len(strings.Fields(text))},
			types.VisualRequest{Kind: "background", Format: types.FormatShort, Query: lesson.Topic},
			types.VisualRequest{Kind: "thumbnail", Format: types.FormatShort, Slide: types.Slide{Title: "Quick Tip: " + lesson.Title}},
		)
	}

	g.logger.Info().
		Str("title", lesson.Title).
		Float64("long_sec", long.DurationSec).
		Bool("short", content.Short != nil).
		Int("visuals", len(content.Visuals)).
		Msg("content ready")
	return content, nil
}

// VisualPreparer gathers the slides, background, captions and thumbnail for one format.
type VisualPreparer interface {
	Prepare(ctx context.Context, content *types.Content, format types.Format) (*visuals.Assets, error)
}

// VideoRenderer turns prepared assets into an MP4 in outputDir.
type VideoRenderer interface {
	Render(ctx context.Context, assets *visuals.Assets, outputDir string) (types.VideoFile, error)
}

// StageComposer is the VideoComposer built from the visuals and render stages.
type StageComposer struct {
	visuals  VisualPreparer
	renderer VideoRenderer
	logger   zerolog.Logger
}

func NewStageComposer(v VisualPreparer, r VideoRenderer, logger zerolog.Logger) *StageComposer {
	return &StageComposer{
		visuals:  v,
		renderer: r,
		logger:   logger.With().Str("stage", "compose").Logger(),
	}
}

// Compose renders the long-form video, then the Short. A Short that fails to
// render is dropped so the lesson still ships.
func (c *StageComposer) Compose(ctx context.Context, run Run, content *types.Content) (*types.Video, error) {
	long, err := c.render(ctx, run, content, types.FormatLong)
	if err != nil {
		return nil, err
	}
	video := &types.Video{Long: long}

	if content.Short != nil {
		short, err := c.render(ctx, run, content, types.FormatShort)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Err(err).Msg("short render failed, continuing with long-form only")
		} else {
			video.Short = &short
		}
	}
	return video, nil
}

func (c *StageComposer) render(ctx context.Context, run Run, content *types.Content, format types.Format) (types.VideoFile, error) {
	assets, err := c.visuals.Prepare(ctx, content, format)
	if err != nil {
		return types.VideoFile{}, fmt.Errorf("%s visuals: %w", format, err)
	}
	vf, err := c.renderer.Render(ctx, assets, filepath.Clean(run.Dir))
	if err != nil {
		return types.VideoFile{}, fmt.Errorf("%s render: %w", format, err)
	}
	return vf, nil
}
