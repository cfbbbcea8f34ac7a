package visuals

import (
	"context"
	"fmt"
	"strings"

	"ai-course-pipeline/shell"
	"ai-course-pipeline/types"
)

// SlideStyle controls how ImageMagick draws cards and thumbnails.
type SlideStyle struct {
	Background     string
	TextColor      string
	Font           string
	TitlePointSize int
	BodyPointSize  int
}

// SlideRenderer draws slides with ImageMagick's convert.
type SlideRenderer struct {
	style  SlideStyle
	runner shell.CommandRunner
}

func NewSlideRenderer(style SlideStyle, runner shell.CommandRunner) *SlideRenderer {
	return &SlideRenderer{style: style, runner: runner}
}

// RenderSlide draws a transparent width x height PNG with a translucent panel,
// the slide title at the top and its content centered. It is overlaid on the
// background by the renderer.
func (r *SlideRenderer) RenderSlide(ctx context.Context, slide types.Slide, index, total, width, height int, outFile string) error {
	textWidth := width * 8 / 10
	margin := width / 20
	titleSize, bodySize := r.pointSizes(width, height)

	args := []string{
		"-size", fmt.Sprintf("%dx%d", width, height), "xc:none",
		"-fill", "rgba(0,0,0,0.55)",
		"-draw", fmt.Sprintf("roundrectangle %d,%d %d,%d 40,40", margin, height/12, width-margin, height-height/12),
		"(",
		"-background", "none", "-fill", r.style.TextColor, "-font", r.style.Font,
		"-pointsize", fmt.Sprint(titleSize), "-size", fmt.Sprintf("%dx", textWidth),
		"-gravity", "center", "caption:" + escapeText(slide.Title),
		")",
		"-gravity", "north", "-geometry", fmt.Sprintf("+0+%d", height/7), "-composite",
		"(",
		"-background", "none", "-fill", r.style.TextColor, "-font", r.style.Font,
		"-pointsize", fmt.Sprint(bodySize), "-size", fmt.Sprintf("%dx", textWidth),
		"-gravity", "center", "caption:" + escapeText(slide.Content),
		")",
		"-gravity", "center", "-geometry", fmt.Sprintf("+0+%d", height/14), "-composite",
	}
	if total > 1 {
		args = append(args,
			"-gravity", "southeast", "-fill", r.style.TextColor, "-font", r.style.Font,
			"-pointsize", fmt.Sprint(max(bodySize/2, 16)),
			"-annotate", fmt.Sprintf("+%d+%d", margin+20, height/12+20), fmt.Sprintf("%d / %d", index, total),
		)
	}
	args = append(args, outFile)

	if err := r.runner.Run(ctx, "convert", args...); err != nil {
		return fmt.Errorf("render slide %d: %w", index, err)
	}
	return nil
}

// RenderThumbnail draws the title wrapped and centered on a solid background.
func (r *SlideRenderer) RenderThumbnail(ctx context.Context, title string, format types.Format, outFile string) error {
	width, height := 1280, 720
	if format == types.FormatShort {
		width, height = 720, 1280
	}
	args := []string{
		"-size", fmt.Sprintf("%dx%d", width, height), "xc:" + r.style.Background,
		"(",
		"-background", "none", "-fill", r.style.TextColor, "-font", r.style.Font,
		"-pointsize", "60", "-size", fmt.Sprintf("%dx", width*8/10),
		"-gravity", "center", "caption:" + escapeText(title),
		")",
		"-gravity", "center", "-composite",
		outFile,
	}
	if err := r.runner.Run(ctx, "convert", args...); err != nil {
		return fmt.Errorf("render %s thumbnail: %w", format, err)
	}
	return nil
}

// pointSizes scales the configured sizes, which are tuned for 1920 wide.
func (r *SlideRenderer) pointSizes(width, height int) (int, int) {
	short := min(width, height)
	scale := float64(short) / 1080.0
	return max(int(float64(r.style.TitlePointSize)*scale), 24), max(int(float64(r.style.BodyPointSize)*scale), 18)
}

// escapeText keeps ImageMagick from treating a leading @ as a file include
// and strips characters it would interpret as escapes.
func escapeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "%", "%%")
	if strings.HasPrefix(s, "@") {
		s = " " + s
	}
	return s
}
