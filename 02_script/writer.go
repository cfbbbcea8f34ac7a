package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

const lessonPrompt = `You're a software engineer and content creator who makes faceless explainer videos for developers.

Write one lesson of the %q series about: %q

Respond with ONLY valid JSON. No markdown. No explanation. Use exactly these keys:
- "title": a compelling tutorial-style title for the lesson (no #Shorts)
- "description": a 2-sentence summary for a developer audience
- "tags": an array of 10-15 relevant tags, including broad ones like "AI development", "Machine Learning", "Programming"
- "slides": an array of %d objects with "title" and "content"; each content is 2-4 spoken sentences, technically precise, with examples or use cases
- "short_form_highlight": one punchy sentence (under 40 words) that works on its own as a YouTube Short
- "hashtags": a single string of 3-5 hashtags separated by spaces`

const closingLine = "Thanks for watching! If you found this helpful, make sure to subscribe to our channel and hit the like button."

// TextGenerator turns a prompt into text. *Gemini implements it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Writer produces the structured lesson text for a topic.
type Writer struct {
	cfg    *config.Config
	gen    TextGenerator
	logger zerolog.Logger
}

func New(cfg *config.Config, gen TextGenerator, logger zerolog.Logger) *Writer {
	return &Writer{
		cfg:    cfg,
		gen:    gen,
		logger: logger.With().Str("stage", "script").Logger(),
	}
}

// lessonJSON is the raw shape returned by the model. Older prompts used
// "long_form_slides", so both keys are accepted.
type lessonJSON struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Tags           json.RawMessage `json:"tags"`
	Slides         []types.Slide   `json:"slides"`
	LongFormSlides []types.Slide   `json:"long_form_slides"`
	ShortHighlight string          `json:"short_form_highlight"`
	Hashtags       string          `json:"hashtags"`
}

// Write asks the model for lesson content and validates it.
func (w *Writer) Write(ctx context.Context, topic string) (*types.LessonContent, error) {
	w.logger.Info().Str("topic", topic).Msg("generating lesson content")

	prompt := fmt.Sprintf(lessonPrompt, w.cfg.Channel.Name, topic, w.cfg.Script.SlideCount)
	text, err := w.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	lesson, err := ParseLesson(text, topic)
	if err != nil {
		return nil, err
	}

	w.logger.Info().
		Str("title", lesson.Title).
		Int("slides", len(lesson.Slides)).
		Msg("lesson content ready")
	return lesson, nil
}

// ParseLesson decodes model output into LessonContent.
func ParseLesson(text, topic string) (*types.LessonContent, error) {
	content := CleanJSON(text)

	var raw lessonJSON
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse lesson JSON: %w\nraw content: %s", err, content[:min(200, len(content))])
	}

	slides := raw.Slides
	if len(slides) == 0 {
		slides = raw.LongFormSlides
	}
	var kept []types.Slide
	for _, s := range slides {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		kept = append(kept, types.Slide{Title: strings.TrimSpace(s.Title), Content: strings.TrimSpace(s.Content)})
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("lesson content for %q has no slides", topic)
	}

	lesson := &types.LessonContent{
		Topic:          topic,
		Title:          strings.TrimSpace(raw.Title),
		Description:    strings.TrimSpace(raw.Description),
		Tags:           parseTags(raw.Tags),
		Hashtags:       strings.TrimSpace(raw.Hashtags),
		Slides:         kept,
		ShortHighlight: strings.TrimSpace(raw.ShortHighlight),
	}
	if lesson.Title == "" {
		lesson.Title = topic
	}
	if lesson.Hashtags == "" {
		lesson.Hashtags = "#AI #Developer #LearnAI"
	}
	return lesson, nil
}

// parseTags accepts a JSON array or a comma-separated string.
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil
		}
		list = strings.Split(joined, ",")
	}
	var tags []string
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Segment pairs an on-screen slide with the narration spoken over it.
type Segment struct {
	Slide     types.Slide
	Narration string
}

// LongSegments lays out the long-form video: an intro slide over the
// greeting, one segment per content slide, and an outro slide over the
// closing call to action.
func (w *Writer) LongSegments(lesson *types.LessonContent, date string) []Segment {
	subtitle := w.cfg.Channel.Name
	if d, err := time.Parse("2006-01-02", date); err == nil {
		subtitle += " | " + d.Format("January 2, 2006")
	}

	greeting := fmt.Sprintf("Hello and welcome to %s. I'm %s. In today's lesson, %s.",
		w.cfg.Channel.Name, w.cfg.Channel.PresenterName, lesson.Title)
	outro := types.Slide{
		Title:   "Thanks for Watching!",
		Content: strings.TrimSpace("Like, Share & Subscribe for more daily AI content!\n" + w.cfg.Channel.ShortsTagline),
	}

	segs := make([]Segment, 0, len(lesson.Slides)+2)
	segs = append(segs, Segment{Slide: types.Slide{Title: lesson.Title, Content: subtitle}, Narration: greeting})
	for _, s := range lesson.Slides {
		segs = append(segs, Segment{Slide: s, Narration: s.Content})
	}
	segs = append(segs, Segment{Slide: outro, Narration: closingLine})
	return segs
}

// JoinNarration is the full voiceover for a list of segments.
func JoinNarration(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Narration); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// ShortNarration is the highlight, or the first slide when the model gave none.
func (w *Writer) ShortNarration(lesson *types.LessonContent) string {
	if lesson.ShortHighlight != "" {
		return lesson.ShortHighlight
	}
	return lesson.Slides[0].Content
}

// ShortSlide is the single branded card shown in the Short.
func (w *Writer) ShortSlide(lesson *types.LessonContent) types.Slide {
	content := w.ShortNarration(lesson)
	if tag := strings.TrimSpace(w.cfg.Channel.ShortsTagline); tag != "" {
		content += "\n\n" + tag
	}
	return types.Slide{Title: "Quick Tip!", Content: content}
}

// CleanJSON strips markdown fences if the model wraps its response in ```json ... ```.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
