package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

// YouTube rejects titles over 100 characters and tag lists over 500.
const (
	maxTitleRunes   = 100
	maxShortHook    = 90
	maxTagChars     = 450
	watchURLPrefix  = "https://www.youtube.com/watch?v="
	shortsHashtags  = "#AI #Programming #Tech #Developer"
	uploadLogFile   = "upload.json"
	defaultCategory = "28" // Science & Technology
)

// TokenSourcer yields OAuth2 tokens for the channel account.
type TokenSourcer interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// videoService is the part of the YouTube Data API the uploader calls.
type videoService interface {
	Insert(ctx context.Context, video *youtube.Video, media io.Reader) (*youtube.Video, error)
	SetThumbnail(ctx context.Context, videoID string, image io.Reader) error
}

type youtubeService struct {
	svc    *youtube.Service
	notify bool
}

func (y youtubeService) Insert(ctx context.Context, video *youtube.Video, media io.Reader) (*youtube.Video, error) {
	return y.svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(y.notify).
		Media(media).
		Context(ctx).
		Do()
}

func (y youtubeService) SetThumbnail(ctx context.Context, videoID string, image io.Reader) error {
	_, err := y.svc.Thumbnails.Set(videoID).Media(image).Context(ctx).Do()
	return err
}

// Uploader handles YouTube video upload via Data API v3
type Uploader struct {
	cfg     *config.Config
	tokens  TokenSourcer
	connect func(ctx context.Context) (videoService, error)
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

func New(cfg *config.Config, tokens TokenSourcer, logger zerolog.Logger) *Uploader {
	u := &Uploader{
		cfg:    cfg,
		tokens: tokens,
		sleep:  sleepCtx,
		logger: logger.With().Str("stage", "upload").Logger(),
	}
	u.connect = u.youtube
	return u
}

func (u *Uploader) youtube(ctx context.Context) (videoService, error) {
	ts, err := u.tokens.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return youtubeService{svc: svc, notify: u.cfg.Upload.NotifySubscribers}, nil
}

// Upload publishes the long-form video and, when rendered, its companion
// Short. A failed Short is logged and does not fail the upload.
func (u *Uploader) Upload(ctx context.Context, content *types.Content, video *types.Video) (types.UploadResult, error) {
	u.logger.Info().Msg("authenticating with YouTube API")
	svc, err := u.connect(ctx)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("youtube auth: %w", err)
	}

	meta := u.LongMetadata(&content.Lesson)
	videoID, err := u.publish(ctx, svc, video.Long, meta)
	if err != nil {
		return types.UploadResult{}, err
	}
	result := types.UploadResult{
		VideoID:  videoID,
		VideoURL: watchURLPrefix + videoID,
	}
	u.logger.Info().Str("video_id", videoID).Str("url", result.VideoURL).Msg("long-form video uploaded")

	if video.Short != nil {
		if shortID, err := u.uploadShort(ctx, svc, content, *video.Short, videoID); err != nil {
			u.logger.Warn().Err(err).Msg("short upload failed, keeping long-form result")
		} else {
			result.ShortID = shortID
		}
	}

	if content.RunDir != "" {
		if err := LogUpload(result, meta, content.RunDir); err != nil {
			u.logger.Warn().Err(err).Msg("could not write upload log")
		}
	}
	return result, nil
}

func (u *Uploader) uploadShort(ctx context.Context, svc videoService, content *types.Content, short types.VideoFile, longID string) (string, error) {
	if d := u.cfg.Upload.ShortDelay; d > 0 {
		u.logger.Info().Dur("delay", d).Msg("waiting before short upload")
		if err := u.sleep(ctx, d); err != nil {
			return "", err
		}
	}
	id, err := u.publish(ctx, svc, short, u.ShortMetadata(&content.Lesson, longID))
	if err != nil {
		return "", err
	}
	u.logger.Info().Str("short_id", id).Msg("short uploaded")
	return id, nil
}

// publish inserts one video and sets its thumbnail. Thumbnail errors are
// logged only; channels without custom thumbnail rights get a 403 here.
func (u *Uploader) publish(ctx context.Context, svc videoService, file types.VideoFile, meta types.VideoMetadata) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		u.logger.Info().
			Str("title", meta.Title).
			Str("format", string(file.Format)).
			Float64("size_mb", float64(fi.Size())/1024/1024).
			Msg("uploading")
	}

	uploaded, err := svc.Insert(ctx, &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Visibility,
			SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
			// false is dropped from the request body unless forced
			ForceSendFields: []string{"SelfDeclaredMadeForKids"},
		},
	}, f)
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if uploaded == nil || uploaded.Id == "" {
		return "", errors.New("youtube upload: response has no video id")
	}

	if file.ThumbnailPath != "" {
		if err := u.setThumbnail(ctx, svc, uploaded.Id, file.ThumbnailPath); err != nil {
			u.logger.Warn().Err(err).Str("video_id", uploaded.Id).Msg("thumbnail not set")
		}
	}
	return uploaded.Id, nil
}

func (u *Uploader) setThumbnail(ctx context.Context, svc videoService, videoID, path string) error {
	img, err := os.Open(path)
	if err != nil {
		return err
	}
	defer img.Close()
	return svc.SetThumbnail(ctx, videoID, img)
}

// LongMetadata builds the title, description and tags of the lesson video.
func (u *Uploader) LongMetadata(lesson *types.LessonContent) types.VideoMetadata {
	ch := u.cfg.Channel
	var desc strings.Builder
	fmt.Fprintf(&desc, "Part of the '%s' series by %s.\n\n", ch.Name, ch.PresenterName)
	fmt.Fprintf(&desc, "Today's Lesson: %s\n\n", lesson.Title)
	if lesson.Description != "" {
		desc.WriteString(lesson.Description + "\n\n")
	}
	desc.WriteString(lesson.Hashtags)

	return types.VideoMetadata{
		Title:       truncateRunes(lesson.Title, maxTitleRunes),
		Description: strings.TrimSpace(desc.String()),
		Tags:        limitTags(lesson.Tags),
		CategoryID:  u.category(),
		Visibility:  u.cfg.Upload.Visibility,
	}
}

// ShortMetadata builds the Short's metadata, linking back to the long video.
func (u *Uploader) ShortMetadata(lesson *types.LessonContent, longID string) types.VideoMetadata {
	title := "AI Quick Tip: " + lesson.Title
	if hook := strings.TrimSpace(lesson.ShortHighlight); hook != "" {
		title = strings.TrimRight(truncateRunes(hook, maxShortHook), " .,;:") + " #Shorts"
	}
	desc := fmt.Sprintf("Watch the full lesson with %s here: %s%s\n\n%s",
		u.cfg.Channel.PresenterName, watchURLPrefix, longID, shortsHashtags)

	return types.VideoMetadata{
		Title:       truncateRunes(title, maxTitleRunes),
		Description: desc,
		Tags:        []string{"AI", "Shorts", "TechTip"},
		CategoryID:  u.category(),
		Visibility:  u.cfg.Upload.Visibility,
	}
}

func (u *Uploader) category() string {
	if u.cfg.Upload.CategoryID != "" {
		return u.cfg.Upload.CategoryID
	}
	return defaultCategory
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n]))
}

// limitTags drops blank and duplicate tags and stops before the API limit.
func limitTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	total := 0
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		if total+len(t) > maxTagChars {
			break
		}
		seen[key] = true
		total += len(t)
		out = append(out, t)
	}
	return out
}

// LogUpload saves the upload result next to the run artifacts
func LogUpload(result types.UploadResult, meta types.VideoMetadata, dir string) error {
	entry := map[string]any{
		"video_id":    result.VideoID,
		"video_url":   result.VideoURL,
		"short_id":    result.ShortID,
		"title":       meta.Title,
		"visibility":  meta.Visibility,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, uploadLogFile), data, 0o644)
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
