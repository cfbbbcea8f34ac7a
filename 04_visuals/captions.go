package visuals

import (
	"fmt"
	"os"
	"strings"
)

// Caption is one timed subtitle chunk.
type Caption struct {
	Start float64
	End   float64
	Text  string
}

// BuildCaptions splits text into chunks of wordsPerChunk words, each timed by
// the average word duration over totalSec.
func BuildCaptions(text string, totalSec float64, wordsPerChunk int) []Caption {
	words := strings.Fields(text)
	if len(words) == 0 || totalSec <= 0 {
		return nil
	}
	if wordsPerChunk <= 0 {
		wordsPerChunk = 15
	}
	perWord := totalSec / float64(len(words))

	var captions []Caption
	var elapsed float64
	for i := 0; i < len(words); i += wordsPerChunk {
		chunk := words[i:min(i+wordsPerChunk, len(words))]
		dur := max(float64(len(chunk))*perWord, 0.1)
		captions = append(captions, Caption{
			Start: elapsed,
			End:   elapsed + dur,
			Text:  strings.Join(chunk, " "),
		})
		elapsed += dur
	}
	return captions
}

// WriteSRT writes captions in SubRip format.
func WriteSRT(path string, captions []Caption) error {
	var sb strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(c.Start), srtTime(c.End), c.Text)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func srtTime(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
