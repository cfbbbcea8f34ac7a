package types

// Format is the target video shape.
type Format string

const (
	FormatLong  Format = "long"
	FormatShort Format = "short"
)

// Lesson is one curriculum item
type Lesson struct {
	Chapter int    `json:"chapter"`
	Part    int    `json:"part"`
	Title   string `json:"title"`
}

// Slide is one on-screen card in the long-form video
type Slide struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// LessonContent is the structured text the generation service returns for a topic
type LessonContent struct {
	Topic          string   `json:"topic"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	Hashtags       string   `json:"hashtags"`
	Slides         []Slide  `json:"slides"`
	ShortHighlight string   `json:"short_form_highlight"`
}

// VisualRequest asks the composer for one visual asset
type VisualRequest struct {
	Kind   string `json:"kind"` // slide | background | thumbnail
	Format Format `json:"format"`
	Slide  Slide  `json:"slide"`
	Query  string `json:"query,omitempty"`
	Words  int    `json:"words,omitempty"` // narration words covered, used to time the asset
}

// Narration is a synthesized voiceover track
type Narration struct {
	Format      Format  `json:"format"`
	Text        string  `json:"text"`
	AudioFile   string  `json:"audio_file"`
	DurationSec float64 `json:"duration_sec"`
}

// Content is everything the generator hands to the composer
type Content struct {
	Date    string          `json:"date"`
	RunDir  string          `json:"run_dir"`
	Lesson  LessonContent   `json:"lesson"`
	Long    Narration       `json:"long"`
	Short   *Narration      `json:"short,omitempty"`
	Visuals []VisualRequest `json:"visuals"`
}

// VideoFile is one rendered output
type VideoFile struct {
	Format        Format  `json:"format"`
	Path          string  `json:"path"`
	ThumbnailPath string  `json:"thumbnail_path"`
	DurationSec   float64 `json:"duration_sec"`
}

// Video is the composer's output for a run
type Video struct {
	Long  VideoFile  `json:"long"`
	Short *VideoFile `json:"short,omitempty"`
}

// VideoMetadata holds all YouTube upload metadata
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}

// UploadResult carries the remote identifiers returned by the hosting platform
type UploadResult struct {
	VideoID  string `json:"video_id"`
	VideoURL string `json:"video_url"`
	ShortID  string `json:"short_id,omitempty"`
}

// RunState tracks the full state of one pipeline run, written next to the artifacts
type RunState struct {
	RunID       string        `json:"run_id"`
	Date        string        `json:"date"`
	Topic       string        `json:"topic"`
	StartedAt   string        `json:"started_at"`
	CompletedAt string        `json:"completed_at"`
	Content     *Content      `json:"content,omitempty"`
	Video       *Video        `json:"video,omitempty"`
	Upload      *UploadResult `json:"upload,omitempty"`
	Error       string        `json:"error,omitempty"`
}
