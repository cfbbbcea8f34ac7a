// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
)

// New returns a logger writing to w at the configured level. Pretty output is
// meant for local runs; CI gets JSON lines.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Stage derives the logger for one pipeline stage.
func Stage(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("stage", name).Logger()
}
