package visuals

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ai-course-pipeline/shell"
)

// Transcriber produces word-accurate captions with the whisper CLI.
type Transcriber struct {
	runner   shell.CommandRunner
	model    string
	language string
	maxChars int
}

func NewTranscriber(runner shell.CommandRunner, model, language string, maxChars int) *Transcriber {
	return &Transcriber{runner: runner, model: model, language: language, maxChars: maxChars}
}

// Transcribe writes an SRT for audioFile to outFile.
func (t *Transcriber) Transcribe(ctx context.Context, audioFile, outFile string) error {
	outDir := filepath.Dir(outFile)
	err := t.runner.Run(ctx, "whisper",
		audioFile,
		"--model", t.model,
		"--output_format", "srt",
		"--output_dir", outDir,
		"--language", t.language,
		"--word_timestamps", "True",
		"--max_line_width", fmt.Sprintf("%d", t.maxChars),
		"--max_line_count", "2",
	)
	if err != nil {
		return fmt.Errorf("whisper failed: %w", err)
	}

	// whisper names its output after the audio file
	base := strings.TrimSuffix(filepath.Base(audioFile), filepath.Ext(audioFile))
	produced := filepath.Join(outDir, base+".srt")
	if produced != outFile {
		if err := os.Rename(produced, outFile); err != nil {
			return fmt.Errorf("move whisper output: %w", err)
		}
	}
	return ValidateSRT(outFile)
}

// ValidateSRT checks that the SRT file holds at least one cue.
func ValidateSRT(srtFile string) error {
	f, err := os.Open(srtFile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// index, timing and text
	if lines < 3 {
		return fmt.Errorf("SRT file %s appears empty or malformed (%d lines)", srtFile, lines)
	}
	return nil
}
