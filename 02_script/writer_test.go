package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Channel: config.ChannelConfig{Name: "AI for Developers", PresenterName: "Sam", ShortsTagline: "#AIforDevelopers"},
		Script:  config.ScriptConfig{SlideCount: 3},
	}
}

const fencedLesson = "```json\n" + `{
  "title": "Embeddings in Practice",
  "description": "What embeddings are. How to use them.",
  "tags": ["AI", " embeddings ", ""],
  "slides": [
    {"title": "What", "content": "Embeddings map text to vectors."},
    {"title": "Empty", "content": "   "},
    {"title": "Why", "content": "Similar meaning lands close together."}
  ],
  "short_form_highlight": "Embeddings turn meaning into geometry.",
  "hashtags": "#AI #Embeddings"
}` + "\n```"

func TestWrite_ParsesFencedJSON(t *testing.T) {
	gen := &fakeGenerator{reply: fencedLesson}
	w := New(testConfig(), gen, zerolog.Nop())

	lesson, err := w.Write(context.Background(), "Vector embeddings")
	if err != nil {
		t.Fatal(err)
	}
	if lesson.Title != "Embeddings in Practice" || lesson.Topic != "Vector embeddings" {
		t.Fatalf("lesson = %+v", lesson)
	}
	if len(lesson.Slides) != 2 {
		t.Fatalf("slides = %d, want blank slide dropped", len(lesson.Slides))
	}
	if strings.Join(lesson.Tags, "|") != "AI|embeddings" {
		t.Fatalf("tags = %q", lesson.Tags)
	}
	if !strings.Contains(gen.prompts[0], `"Vector embeddings"`) || !strings.Contains(gen.prompts[0], "3 objects") {
		t.Fatalf("prompt = %s", gen.prompts[0])
	}
}

func TestWrite_PropagatesModelError(t *testing.T) {
	quota := errors.New("quota exceeded")
	w := New(testConfig(), &fakeGenerator{err: quota}, zerolog.Nop())
	if _, err := w.Write(context.Background(), "x"); !errors.Is(err, quota) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseLesson(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		check   func(*testing.T, *types.LessonContent)
	}{
		{
			name: "legacy slide key and comma tags",
			in:   `{"title":"T","tags":"a, b ,c","long_form_slides":[{"title":"s","content":"c"}]}`,
			check: func(t *testing.T, l *types.LessonContent) {
				if len(l.Slides) != 1 || len(l.Tags) != 3 || l.Tags[1] != "b" {
					t.Fatalf("lesson = %+v", l)
				}
			},
		},
		{
			name: "title and hashtags default",
			in:   `{"slides":[{"title":"s","content":"c"}]}`,
			check: func(t *testing.T, l *types.LessonContent) {
				if l.Title != "topic" || l.Hashtags == "" {
					t.Fatalf("lesson = %+v", l)
				}
			},
		},
		{name: "no slides", in: `{"title":"T","slides":[]}`, wantErr: true},
		{name: "not json", in: `Sure! Here is your lesson`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ParseLesson(tt.in, "topic")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, l)
			}
		})
	}
}

func TestSegmentsAndShort(t *testing.T) {
	w := New(testConfig(), nil, zerolog.Nop())
	lesson := &types.LessonContent{
		Title:  "RAG 101",
		Slides: []types.Slide{{Title: "a", Content: "First point."}, {Title: "b", Content: "Second point."}},
	}

	segs := w.LongSegments(lesson, "2024-05-01")
	if len(segs) != 4 {
		t.Fatalf("segments = %d, want intro + 2 + outro", len(segs))
	}
	if segs[0].Slide.Title != "RAG 101" || segs[0].Slide.Content != "AI for Developers | May 1, 2024" {
		t.Fatalf("intro = %+v", segs[0].Slide)
	}
	if segs[3].Slide.Title != "Thanks for Watching!" || !strings.HasSuffix(segs[3].Slide.Content, "#AIforDevelopers") {
		t.Fatalf("outro = %+v", segs[3].Slide)
	}

	narration := JoinNarration(segs)
	if !strings.HasPrefix(narration, "Hello and welcome to AI for Developers. I'm Sam. In today's lesson, RAG 101.") {
		t.Fatalf("narration = %q", narration)
	}
	if !strings.Contains(narration, "RAG 101. First point. Second point. Thanks for watching!") {
		t.Fatalf("narration = %q", narration)
	}

	if got := w.ShortNarration(lesson); got != "First point." {
		t.Fatalf("short narration fallback = %q", got)
	}
	lesson.ShortHighlight = "Retrieval beats memorization."
	short := w.ShortSlide(lesson)
	if short.Content != "Retrieval beats memorization.\n\n#AIforDevelopers" {
		t.Fatalf("short slide = %q", short.Content)
	}
}

func TestCleanJSON(t *testing.T) {
	if got := CleanJSON("```json\n{}\n```"); got != "{}" {
		t.Fatalf("CleanJSON = %q", got)
	}
	if got := CleanJSON(" {} "); got != "{}" {
		t.Fatalf("CleanJSON = %q", got)
	}
}
