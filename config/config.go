package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Channel  ChannelConfig  `yaml:"channel"`
	Topic    TopicConfig    `yaml:"topic"`
	Script   ScriptConfig   `yaml:"script"`
	Audio    AudioConfig    `yaml:"audio"`
	Visuals  VisualsConfig  `yaml:"visuals"`
	Render   RenderConfig   `yaml:"render"`
	Upload   UploadConfig   `yaml:"upload"`
	Plan     PlanConfig     `yaml:"plan"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Paths    PathsConfig    `yaml:"paths"`
	Log      LogConfig      `yaml:"log"`

	// Secrets is populated from the environment, never from YAML.
	Secrets Secrets `yaml:"-"`
}

type ChannelConfig struct {
	Name          string `yaml:"name"`
	PresenterName string `yaml:"presenter_name"`
	ShortsTagline string `yaml:"shorts_tagline"`
}

type TopicConfig struct {
	Source         string   `yaml:"source"` // curriculum | reddit | rss
	CurriculumSize int      `yaml:"curriculum_size"`
	Subreddits     []string `yaml:"subreddits"`
	MinRedditScore int      `yaml:"min_reddit_score"`
	FeedURLs       []string `yaml:"feed_urls"`
	LookbackDays   int      `yaml:"lookback_days"`
	FallbackTopics []string `yaml:"fallback_topics"`
}

type ScriptConfig struct {
	GeminiModel string  `yaml:"gemini_model"`
	Temperature float32 `yaml:"temperature"`
	SlideCount  int     `yaml:"slide_count"`
}

type AudioConfig struct {
	Engine   string `yaml:"engine"` // edge-tts | gtts
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
	Retries  int    `yaml:"retries"`
}

type VisualsConfig struct {
	BackgroundColor string  `yaml:"background_color"`
	TextColor       string  `yaml:"text_color"`
	Font            string  `yaml:"font"`
	TitlePointSize  int     `yaml:"title_point_size"`
	BodyPointSize   int     `yaml:"body_point_size"`
	PexelsPerPage   int     `yaml:"pexels_per_page"`
	UsePollinations bool    `yaml:"use_pollinations"`
	MusicVolume     float64 `yaml:"music_volume"`
}

type RenderConfig struct {
	FPS               int    `yaml:"fps"`
	VideoCodec        string `yaml:"video_codec"`
	AudioCodec        string `yaml:"audio_codec"`
	AudioBitrate      string `yaml:"audio_bitrate"`
	Preset            string `yaml:"preset"`
	LongResolution    string `yaml:"long_resolution"`
	ShortResolution   string `yaml:"short_resolution"`
	LongCaptionWords  int    `yaml:"long_caption_words"`
	ShortCaptionWords int    `yaml:"short_caption_words"`
	BurnCaptions      bool   `yaml:"burn_captions"`
	CaptionEngine     string `yaml:"caption_engine"` // estimate | whisper
	WhisperModel      string `yaml:"whisper_model"`
	ShortEnabled      bool   `yaml:"short_enabled"`
}

type UploadConfig struct {
	Visibility        string        `yaml:"visibility"`
	CategoryID        string        `yaml:"category_id"`
	MadeForKids       bool          `yaml:"made_for_kids"`
	NotifySubscribers bool          `yaml:"notify_subscribers"`
	DefaultLanguage   string        `yaml:"default_language"`
	ShortDelay        time.Duration `yaml:"short_delay"`
}

type PlanConfig struct {
	Backend    string        `yaml:"backend"` // file | s3 | gcs | postgres
	File       string        `yaml:"file"`
	Bucket     string        `yaml:"bucket"`
	Key        string        `yaml:"key"`
	Region     string        `yaml:"region"`
	Name       string        `yaml:"name"` // row name for the postgres backend
	Lock       string        `yaml:"lock"` // none | file | redis
	LockTTL    time.Duration `yaml:"lock_ttl"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type NotifyConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PathsConfig struct {
	Output          string   `yaml:"output"`
	Curriculum      string   `yaml:"curriculum"`
	Music           string   `yaml:"music"`
	Backgrounds     string   `yaml:"backgrounds"` // local clip library with tags.json
	ClientSecrets   string   `yaml:"client_secrets"`
	Credentials     string   `yaml:"credentials"`
	CleanupPatterns []string `yaml:"cleanup_patterns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Secrets holds API keys and connection strings read from the environment.
type Secrets struct {
	GoogleAPIKey        string
	PexelsAPIKey        string
	ClientSecretsB64    string
	CredentialsB64      string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
	RedditClientID      string
	RedditClientSecret  string
	RedditUsername      string
	RedditPassword      string
	RedisAddr           string
	RedisPassword       string
	DatabaseURL         string
}

// Load reads config.yaml, applies defaults, folds in environment secrets and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Secrets = SecretsFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SecretsFromEnv collects secrets from the process environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		PexelsAPIKey:        os.Getenv("PEXELS_API_KEY"),
		ClientSecretsB64:    os.Getenv("YOUTUBE_CLIENT_SECRETS_B64"),
		CredentialsB64:      os.Getenv("YOUTUBE_CREDENTIALS_B64"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
		RedditClientID:      os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret:  os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditUsername:      os.Getenv("REDDIT_USERNAME"),
		RedditPassword:      os.Getenv("REDDIT_PASSWORD"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASS"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
	}
}

func (c *Config) applyDefaults() {
	setString(&c.Channel.Name, "AI for Developers")
	setString(&c.Channel.PresenterName, "your host")

	setString(&c.Topic.Source, "curriculum")
	setInt(&c.Topic.CurriculumSize, 30)
	setInt(&c.Topic.LookbackDays, 7)

	setString(&c.Script.GeminiModel, "gemini-1.5-flash")
	if c.Script.Temperature == 0 {
		c.Script.Temperature = 0.7
	}
	setInt(&c.Script.SlideCount, 5)

	setString(&c.Audio.Engine, "edge-tts")
	setString(&c.Audio.Voice, "en-US-GuyNeural")
	setString(&c.Audio.Language, "en")
	setInt(&c.Audio.Retries, 3)

	setString(&c.Visuals.BackgroundColor, "#0c111d")
	setString(&c.Visuals.TextColor, "white")
	setString(&c.Visuals.Font, "DejaVu-Sans-Bold")
	setInt(&c.Visuals.TitlePointSize, 72)
	setInt(&c.Visuals.BodyPointSize, 44)
	setInt(&c.Visuals.PexelsPerPage, 5)
	if c.Visuals.MusicVolume == 0 {
		c.Visuals.MusicVolume = 0.15
	}

	setInt(&c.Render.FPS, 24)
	setString(&c.Render.VideoCodec, "libx264")
	setString(&c.Render.AudioCodec, "aac")
	setString(&c.Render.AudioBitrate, "192k")
	setString(&c.Render.Preset, "fast")
	setString(&c.Render.LongResolution, "1920x1080")
	setString(&c.Render.ShortResolution, "1080x1920")
	setInt(&c.Render.LongCaptionWords, 15)
	setInt(&c.Render.ShortCaptionWords, 20)
	setString(&c.Render.CaptionEngine, "estimate")
	setString(&c.Render.WhisperModel, "base")

	setString(&c.Upload.Visibility, "private")
	setString(&c.Upload.CategoryID, "28")
	setString(&c.Upload.DefaultLanguage, "en")
	if c.Upload.ShortDelay == 0 {
		c.Upload.ShortDelay = 30 * time.Second
	}

	setString(&c.Plan.Backend, "file")
	setString(&c.Plan.File, "content_plan.json")
	setString(&c.Plan.Key, "content_plan.json")
	setString(&c.Plan.Name, "default")
	setString(&c.Plan.Lock, "none")
	if c.Plan.LockTTL == 0 {
		c.Plan.LockTTL = 2 * time.Hour
	}
	if c.Plan.StaleAfter == 0 {
		c.Plan.StaleAfter = 24 * time.Hour
	}

	setString(&c.Schedule.Cron, "0 9 * * *")
	setString(&c.Schedule.Timezone, "UTC")

	setString(&c.Notify.Topic, "pipeline-runs")
	setString(&c.Server.Addr, ":8080")

	setString(&c.Paths.Output, "output")
	setString(&c.Paths.Curriculum, "curriculum.json")
	setString(&c.Paths.Music, "assets/music/bg_music.mp3")
	setString(&c.Paths.ClientSecrets, "client_secrets.json")
	setString(&c.Paths.Credentials, "credentials.json")
	if c.Paths.CleanupPatterns == nil {
		c.Paths.CleanupPatterns = []string{"*.wav"}
	}

	setString(&c.Log.Level, "info")
}

// Validate checks enum fields and cross-field requirements.
func (c *Config) Validate() error {
	var problems []string

	if !oneOf(c.Topic.Source, "curriculum", "reddit", "rss") {
		problems = append(problems, fmt.Sprintf("topic.source %q must be curriculum, reddit or rss", c.Topic.Source))
	}
	if c.Topic.Source == "reddit" && len(c.Topic.Subreddits) == 0 {
		problems = append(problems, "topic.subreddits is required for the reddit source")
	}
	if c.Topic.Source == "rss" && len(c.Topic.FeedURLs) == 0 {
		problems = append(problems, "topic.feed_urls is required for the rss source")
	}
	if !oneOf(c.Audio.Engine, "edge-tts", "gtts") {
		problems = append(problems, fmt.Sprintf("audio.engine %q must be edge-tts or gtts", c.Audio.Engine))
	}
	if !oneOf(c.Render.CaptionEngine, "estimate", "whisper") {
		problems = append(problems, fmt.Sprintf("render.caption_engine %q must be estimate or whisper", c.Render.CaptionEngine))
	}
	if !oneOf(c.Upload.Visibility, "private", "public", "unlisted") {
		problems = append(problems, fmt.Sprintf("upload.visibility %q must be private, public or unlisted", c.Upload.Visibility))
	}
	if !oneOf(c.Plan.Backend, "file", "s3", "gcs", "postgres") {
		problems = append(problems, fmt.Sprintf("plan.backend %q must be file, s3, gcs or postgres", c.Plan.Backend))
	}
	if (c.Plan.Backend == "s3" || c.Plan.Backend == "gcs") && c.Plan.Bucket == "" {
		problems = append(problems, "plan.bucket is required for object store backends")
	}
	if !oneOf(c.Plan.Lock, "none", "file", "redis") {
		problems = append(problems, fmt.Sprintf("plan.lock %q must be none, file or redis", c.Plan.Lock))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("schedule.timezone: %v", err))
	}
	for _, res := range []string{c.Render.LongResolution, c.Render.ShortResolution} {
		if _, _, err := ParseResolution(res); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the schedule time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseResolution splits "WIDTHxHEIGHT".
func ParseResolution(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must look like 1920x1080", s)
	}
	return w, h, nil
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
