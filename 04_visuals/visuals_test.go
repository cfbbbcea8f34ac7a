package visuals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

type call struct {
	name string
	args []string
}

type stubRunner struct {
	calls []call
	err   error
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) error {
	s.calls = append(s.calls, call{name: name, args: args})
	return s.err
}

func (s *stubRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, call{name: name, args: args})
	return nil, s.err
}

func TestBuildCaptions(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 35))
	caps := BuildCaptions(text, 35, 15)
	if len(caps) != 3 {
		t.Fatalf("chunks = %d, want 3", len(caps))
	}
	if caps[0].Start != 0 || caps[0].End != 15 || caps[2].End != 35 {
		t.Fatalf("timing = %+v", caps)
	}
	if len(strings.Fields(caps[2].Text)) != 5 {
		t.Fatalf("last chunk = %q", caps[2].Text)
	}
	if BuildCaptions("", 10, 15) != nil || BuildCaptions("a b", 0, 15) != nil {
		t.Fatal("empty input should give no captions")
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.srt")
	err := WriteSRT(path, []Caption{
		{Start: 0, End: 1.5, Text: "Hello there"},
		{Start: 1.5, End: 3661.25, Text: "General"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello there\n\n2\n00:00:01,500 --> 01:01:01,250\nGeneral\n\n"
	if string(got) != want {
		t.Fatalf("srt =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderSlide_Args(t *testing.T) {
	runner := &stubRunner{}
	r := NewSlideRenderer(SlideStyle{Background: "#0c111d", TextColor: "white", Font: "DejaVu-Sans-Bold", TitlePointSize: 72, BodyPointSize: 44}, runner)

	err := r.RenderSlide(context.Background(), types.Slide{Title: "@home", Content: "100% vectors"}, 2, 5, 1920, 1080, "/tmp/s.png")
	if err != nil {
		t.Fatal(err)
	}
	c := runner.calls[0]
	if c.name != "convert" || c.args[len(c.args)-1] != "/tmp/s.png" {
		t.Fatalf("call = %+v", c)
	}
	for _, want := range []string{"caption: @home", "caption:100%% vectors", "2 / 5", "1920x1080"} {
		if !slices.Contains(c.args, want) {
			t.Errorf("args missing %q: %v", want, c.args)
		}
	}
}

func TestRenderThumbnail_ShortIsPortrait(t *testing.T) {
	runner := &stubRunner{}
	r := NewSlideRenderer(SlideStyle{Background: "#0c111d", TextColor: "white", Font: "F"}, runner)
	if err := r.RenderThumbnail(context.Background(), "Quick Tip: RAG", types.FormatShort, "/tmp/t.png"); err != nil {
		t.Fatal(err)
	}
	args := runner.calls[0].args
	if !slices.Contains(args, "720x1280") || !slices.Contains(args, "xc:#0c111d") {
		t.Fatalf("args = %v", args)
	}
}

func pexelsServer(t *testing.T, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if gotQuery != nil {
			*gotQuery = r.URL.RawQuery
		}
		fmt.Fprint(w, strings.ReplaceAll(body, "BASE", srv.URL))
	})
	mux.HandleFunc("/small.mp4", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "small-video") })
	mux.HandleFunc("/big.mp4", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "big-video") })
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPexelsFetcher_PrefersLargeEnoughMP4(t *testing.T) {
	body := `{"videos":[
	  {"id":1,"video_files":[{"file_type":"video/webm","width":4000,"height":4000,"link":"BASE/x.webm"},{"file_type":"video/mp4","width":640,"height":360,"link":"BASE/small.mp4"}]},
	  {"id":2,"video_files":[{"file_type":"video/mp4","width":1920,"height":1080,"link":"BASE/big.mp4"}]}
	]}`
	var query string
	srv := pexelsServer(t, body, &query)

	p := NewPexelsFetcher("key", 5)
	p.searchURL = srv.URL + "/search"
	out := filepath.Join(t.TempDir(), "bg.mp4")
	if err := p.Fetch(context.Background(), "neural networks", 1920, 1080, 42.7, out); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "big-video" {
		t.Fatalf("downloaded %q", got)
	}
	for _, want := range []string{"orientation=landscape", "min_duration=42", "per_page=5", "query=neural+networks"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestPexelsFetcher_FallsBackToFirstMP4(t *testing.T) {
	body := `{"videos":[{"id":1,"video_files":[{"file_type":"video/mp4","width":640,"height":360,"link":"BASE/small.mp4"}]}]}`
	var query string
	srv := pexelsServer(t, body, &query)

	p := NewPexelsFetcher("key", 5)
	p.searchURL = srv.URL + "/search"
	out := filepath.Join(t.TempDir(), "bg.mp4")
	if err := p.Fetch(context.Background(), "ai", 1080, 1920, 10, out); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "small-video" {
		t.Fatalf("downloaded %q", got)
	}
	if !strings.Contains(query, "orientation=portrait") {
		t.Fatalf("query = %q", query)
	}
}

func TestPexelsFetcher_Errors(t *testing.T) {
	if err := NewPexelsFetcher("", 5).Fetch(context.Background(), "q", 1, 1, 1, "x"); err == nil {
		t.Fatal("missing key should fail")
	}

	srv := pexelsServer(t, `{"videos":[]}`, nil)
	p := NewPexelsFetcher("key", 5)
	p.searchURL = srv.URL + "/search"
	if err := p.Fetch(context.Background(), "q", 1, 1, 1, filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("no videos should fail")
	}

	p = NewPexelsFetcher("wrong", 5)
	p.searchURL = srv.URL + "/search"
	if err := p.Fetch(context.Background(), "q", 1, 1, 1, filepath.Join(t.TempDir(), "x")); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
}

func TestPollinationsFetcher_RetriesThenSucceeds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("width") != "1080" || r.URL.Query().Get("height") != "1920" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	p := NewPollinationsFetcher()
	p.baseURL = srv.URL + "/prompt/"
	p.sleep = func(context.Context, time.Duration) error { return nil }

	out := filepath.Join(t.TempDir(), "bg.jpg")
	if err := p.Fetch(context.Background(), "transformers", 1080, 1920, out); err != nil {
		t.Fatal(err)
	}
	if hits != 3 {
		t.Fatalf("hits = %d", hits)
	}
}

func TestPollinationsFetcher_RejectsTinyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "error")
	}))
	defer srv.Close()

	p := NewPollinationsFetcher()
	p.baseURL = srv.URL + "/prompt/"
	p.sleep = func(context.Context, time.Duration) error { return nil }
	if err := p.Fetch(context.Background(), "x", 10, 10, filepath.Join(t.TempDir(), "o.jpg")); err == nil {
		t.Fatal("expected error")
	}
}

func assemblerConfig() *config.Config {
	return &config.Config{
		Visuals: config.VisualsConfig{BackgroundColor: "#0c111d", TextColor: "white", Font: "F", TitlePointSize: 72, BodyPointSize: 44, PexelsPerPage: 5},
		Render: config.RenderConfig{
			LongResolution: "1920x1080", ShortResolution: "1080x1920",
			LongCaptionWords: 15, ShortCaptionWords: 20, BurnCaptions: true,
		},
	}
}

func TestAssembler_PrepareLongWithoutBackgroundKeys(t *testing.T) {
	runner := &stubRunner{}
	a := NewAssembler(assemblerConfig(), runner, zerolog.Nop())
	content := &types.Content{
		RunDir: t.TempDir(),
		Long:   types.Narration{Format: types.FormatLong, Text: strings.Repeat("w ", 30), DurationSec: 30},
		Visuals: []types.VisualRequest{
			{Kind: "slide", Format: types.FormatLong, Slide: types.Slide{Title: "Intro"}, Words: 10},
			{Kind: "slide", Format: types.FormatLong, Slide: types.Slide{Title: "Body"}, Words: 20},
			{Kind: "background", Format: types.FormatLong, Query: "ai"},
			{Kind: "thumbnail", Format: types.FormatLong, Slide: types.Slide{Title: "Intro"}},
			{Kind: "slide", Format: types.FormatShort, Slide: types.Slide{Title: "Tip"}, Words: 5},
		},
	}

	assets, err := a.Prepare(context.Background(), content, types.FormatLong)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets.Slides) != 2 || assets.SlideDurations[0] != 10 || assets.SlideDurations[1] != 20 {
		t.Fatalf("slides = %v durations = %v", assets.Slides, assets.SlideDurations)
	}
	if assets.BackgroundKind != BackgroundColor || assets.Background != "" {
		t.Fatalf("background = %s %q", assets.BackgroundKind, assets.Background)
	}
	if assets.Thumbnail == "" || assets.Captions == "" {
		t.Fatalf("assets = %+v", assets)
	}
	if assets.Width != 1920 || assets.Height != 1080 {
		t.Fatalf("size = %dx%d", assets.Width, assets.Height)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("convert calls = %d, want thumbnail + 2 slides", len(runner.calls))
	}
}

func TestAssembler_ShortNeedsNarration(t *testing.T) {
	a := NewAssembler(assemblerConfig(), &stubRunner{}, zerolog.Nop())
	content := &types.Content{RunDir: t.TempDir()}
	if _, err := a.Prepare(context.Background(), content, types.FormatShort); err == nil {
		t.Fatal("expected error without short narration")
	}
}

func TestAssembler_SlideFailureIsReturned(t *testing.T) {
	boom := errors.New("convert: not authorized")
	a := NewAssembler(assemblerConfig(), &stubRunner{err: boom}, zerolog.Nop())
	content := &types.Content{
		RunDir:  t.TempDir(),
		Long:    types.Narration{Text: "a b", DurationSec: 2},
		Visuals: []types.VisualRequest{{Kind: "slide", Format: types.FormatLong, Words: 2}},
	}
	if _, err := a.Prepare(context.Background(), content, types.FormatLong); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
