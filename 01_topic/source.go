// Package topic picks the lesson topic for a date that has no plan entry yet.
package topic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
)

// ErrExhausted means every candidate topic has already been used.
var ErrExhausted = errors.New("no unused topic available")

// Source yields the next topic not in used. used keys are lowercase.
type Source interface {
	Next(ctx context.Context, date string, used map[string]bool) (string, error)
}

// TextGenerator is the generative model used to build a curriculum.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the Source named by cfg.Topic.Source. gen may be nil for the
// reddit and rss sources.
func New(cfg *config.Config, gen TextGenerator, logger zerolog.Logger) (Source, error) {
	logger = logger.With().Str("stage", "topic").Logger()
	var src Source
	switch cfg.Topic.Source {
	case "", "curriculum":
		if gen == nil {
			return nil, fmt.Errorf("curriculum topic source needs a text generator")
		}
		src = NewCurriculumSource(cfg, gen, logger)
	case "reddit":
		r, err := NewRedditSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		src = r
	case "rss":
		src = NewRSSSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown topic source %q", cfg.Topic.Source)
	}
	if len(cfg.Topic.FallbackTopics) > 0 {
		src = WithFallback(src, cfg.Topic.FallbackTopics, logger)
	}
	return src, nil
}

// WithFallback consults topics in order when primary fails or is exhausted.
func WithFallback(primary Source, topics []string, logger zerolog.Logger) Source {
	return &fallbackSource{primary: primary, topics: topics, logger: logger}
}

type fallbackSource struct {
	primary Source
	topics  []string
	logger  zerolog.Logger
}

func (f *fallbackSource) Next(ctx context.Context, date string, used map[string]bool) (string, error) {
	topic, err := f.primary.Next(ctx, date, used)
	if err == nil {
		return topic, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.logger.Warn().Err(err).Msg("primary topic source failed, using fallback list")
	if t, ok := firstUnused(f.topics, used); ok {
		return t, nil
	}
	return "", fmt.Errorf("%w (primary: %v)", ErrExhausted, err)
}

func firstUnused(candidates []string, used map[string]bool) (string, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && !used[strings.ToLower(c)] {
			return c, true
		}
	}
	return "", false
}
