package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/youtube/v3"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

type fakeService struct {
	inserted   []*youtube.Video
	thumbnails []string
	insertErrs []error
	nextIDs    []string
}

func (f *fakeService) Insert(_ context.Context, v *youtube.Video, media io.Reader) (*youtube.Video, error) {
	if _, err := io.ReadAll(media); err != nil {
		return nil, err
	}
	i := len(f.inserted)
	f.inserted = append(f.inserted, v)
	if i < len(f.insertErrs) && f.insertErrs[i] != nil {
		return nil, f.insertErrs[i]
	}
	return &youtube.Video{Id: f.nextIDs[i]}, nil
}

func (f *fakeService) SetThumbnail(_ context.Context, id string, _ io.Reader) error {
	f.thumbnails = append(f.thumbnails, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Channel: config.ChannelConfig{Name: "AI for Developers", PresenterName: "Mr. Rory"},
		Upload:  config.UploadConfig{Visibility: "private", CategoryID: "28", DefaultLanguage: "en", ShortDelay: 30 * time.Second},
	}
}

func newTestUploader(svc *fakeService) (*Uploader, *[]time.Duration) {
	u := New(testConfig(), nil, zerolog.Nop())
	u.connect = func(context.Context) (videoService, error) { return svc, nil }
	var slept []time.Duration
	u.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return u, &slept
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func fixture(t *testing.T, withShort bool) (*types.Content, *types.Video) {
	dir := t.TempDir()
	content := &types.Content{
		Date:   "2025-03-01",
		RunDir: dir,
		Lesson: types.LessonContent{
			Title:          "Prompt Engineering Basics",
			Tags:           []string{"AI", "#prompts", "ai", " "},
			Hashtags:       "#AI #Developer",
			ShortHighlight: "Always give the model an example of the output you want.",
		},
	}
	video := &types.Video{Long: types.VideoFile{
		Format:        types.FormatLong,
		Path:          writeFile(t, dir, "long_video.mp4"),
		ThumbnailPath: writeFile(t, dir, "long_thumbnail.png"),
	}}
	if withShort {
		video.Short = &types.VideoFile{Format: types.FormatShort, Path: writeFile(t, dir, "short_video.mp4")}
	}
	return content, video
}

func TestUpload_LongAndShort(t *testing.T) {
	svc := &fakeService{nextIDs: []string{"LONG123", "SHORT456"}}
	u, slept := newTestUploader(svc)
	content, video := fixture(t, true)

	res, err := u.Upload(context.Background(), content, video)
	if err != nil {
		t.Fatal(err)
	}
	if res.VideoID != "LONG123" || res.ShortID != "SHORT456" || res.VideoURL != "https://www.youtube.com/watch?v=LONG123" {
		t.Fatalf("result = %+v", res)
	}
	if len(*slept) != 1 || (*slept)[0] != 30*time.Second {
		t.Fatalf("slept = %v", *slept)
	}

	long := svc.inserted[0]
	if long.Snippet.Title != "Prompt Engineering Basics" || long.Snippet.CategoryId != "28" || long.Status.PrivacyStatus != "private" {
		t.Fatalf("long snippet/status = %+v %+v", long.Snippet, long.Status)
	}
	if got := strings.Join(long.Snippet.Tags, ","); got != "AI,prompts" {
		t.Fatalf("tags = %q", got)
	}
	short := svc.inserted[1]
	if !strings.HasSuffix(short.Snippet.Title, " #Shorts") {
		t.Fatalf("short title = %q", short.Snippet.Title)
	}
	if !strings.Contains(short.Snippet.Description, "watch?v=LONG123") {
		t.Fatalf("short description = %q", short.Snippet.Description)
	}
	if len(svc.thumbnails) != 1 || svc.thumbnails[0] != "LONG123" {
		t.Fatalf("thumbnails = %v", svc.thumbnails)
	}
	if _, err := os.Stat(filepath.Join(content.RunDir, uploadLogFile)); err != nil {
		t.Fatalf("upload log not written: %v", err)
	}
}

func TestUpload_ShortFailureKeepsLongResult(t *testing.T) {
	svc := &fakeService{nextIDs: []string{"LONG123", ""}, insertErrs: []error{nil, errors.New("quotaExceeded")}}
	u, _ := newTestUploader(svc)
	content, video := fixture(t, true)

	res, err := u.Upload(context.Background(), content, video)
	if err != nil {
		t.Fatal(err)
	}
	if res.VideoID != "LONG123" || res.ShortID != "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestUpload_LongFailure(t *testing.T) {
	svc := &fakeService{nextIDs: []string{""}, insertErrs: []error{errors.New("quotaExceeded")}}
	u, _ := newTestUploader(svc)
	content, video := fixture(t, true)

	if _, err := u.Upload(context.Background(), content, video); err == nil || !strings.Contains(err.Error(), "quotaExceeded") {
		t.Fatalf("err = %v", err)
	}
	if len(svc.inserted) != 1 {
		t.Fatalf("short should not be attempted, inserts = %d", len(svc.inserted))
	}
}

func TestUpload_AuthFailure(t *testing.T) {
	u := New(testConfig(), nil, zerolog.Nop())
	boom := errors.New("no credentials")
	u.connect = func(context.Context) (videoService, error) { return nil, boom }
	content, video := fixture(t, false)
	if _, err := u.Upload(context.Background(), content, video); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestShortMetadata(t *testing.T) {
	u := New(testConfig(), nil, zerolog.Nop())

	tests := []struct {
		name      string
		highlight string
		want      string
	}{
		{"uses highlight", "Cache your embeddings.", "Cache your embeddings #Shorts"},
		{"falls back to title", "  ", "AI Quick Tip: RAG 101"},
		{"truncates long hooks", strings.Repeat("a", 120), strings.Repeat("a", 90) + " #Shorts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := u.ShortMetadata(&types.LessonContent{Title: "RAG 101", ShortHighlight: tt.highlight}, "XYZ")
			if meta.Title != tt.want {
				t.Fatalf("title = %q, want %q", meta.Title, tt.want)
			}
			if !strings.HasPrefix(meta.Description, "Watch the full lesson with Mr. Rory here: https://www.youtube.com/watch?v=XYZ") {
				t.Fatalf("description = %q", meta.Description)
			}
		})
	}
}

func TestLongMetadata(t *testing.T) {
	u := New(testConfig(), nil, zerolog.Nop())
	meta := u.LongMetadata(&types.LessonContent{Title: "Vectors", Hashtags: "#AI"})
	want := "Part of the 'AI for Developers' series by Mr. Rory.\n\nToday's Lesson: Vectors\n\n#AI"
	if meta.Description != want {
		t.Fatalf("description = %q", meta.Description)
	}
	if meta.Visibility != "private" {
		t.Fatalf("visibility = %q", meta.Visibility)
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
