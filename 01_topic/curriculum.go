package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
	"ai-course-pipeline/types"
)

const curriculumPrompt = `You're an experienced AI engineer designing a daily video course called %q for software developers.

Create an ordered curriculum of exactly %d lessons, going from fundamentals to advanced, practical topics
(LLM APIs, embeddings, RAG, agents, fine-tuning, evaluation, deployment, cost and latency).
Group lessons into chapters; number parts within each chapter from 1.

Respond with ONLY a JSON array. No markdown. No explanation.
Each element: {"chapter": <int>, "part": <int>, "title": "<lesson title>"}`

// CurriculumSource walks a generated course outline in order. The outline is
// generated once and cached on disk so later runs see the same order.
type CurriculumSource struct {
	gen    TextGenerator
	path   string
	size   int
	logger zerolog.Logger

	channel string
}

func NewCurriculumSource(cfg *config.Config, gen TextGenerator, logger zerolog.Logger) *CurriculumSource {
	return &CurriculumSource{
		gen:     gen,
		path:    cfg.Paths.Curriculum,
		size:    cfg.Topic.CurriculumSize,
		logger:  logger,
		channel: cfg.Channel.Name,
	}
}

func (c *CurriculumSource) Next(ctx context.Context, date string, used map[string]bool) (string, error) {
	lessons, err := c.Curriculum(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lessons {
		if !used[strings.ToLower(strings.TrimSpace(l.Title))] {
			c.logger.Info().
				Str("date", date).
				Int("chapter", l.Chapter).
				Int("part", l.Part).
				Str("title", l.Title).
				Msg("selected curriculum lesson")
			return strings.TrimSpace(l.Title), nil
		}
	}
	return "", fmt.Errorf("%w: all %d curriculum lessons produced", ErrExhausted, len(lessons))
}

// Curriculum returns the cached outline, generating it on first use.
func (c *CurriculumSource) Curriculum(ctx context.Context) ([]types.Lesson, error) {
	data, err := os.ReadFile(c.path)
	switch {
	case err == nil:
		var lessons []types.Lesson
		if err := json.Unmarshal(data, &lessons); err != nil {
			return nil, fmt.Errorf("parse curriculum %s: %w", c.path, err)
		}
		return lessons, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read curriculum %s: %w", c.path, err)
	}

	c.logger.Info().Int("lessons", c.size).Msg("no curriculum on disk, generating one")
	text, err := c.gen.Generate(ctx, fmt.Sprintf(curriculumPrompt, c.channel, c.size))
	if err != nil {
		return nil, fmt.Errorf("generate curriculum: %w", err)
	}
	lessons, err := parseCurriculum(text)
	if err != nil {
		return nil, err
	}
	if err := c.save(lessons); err != nil {
		return nil, err
	}
	c.logger.Info().Int("lessons", len(lessons)).Str("path", c.path).Msg("curriculum saved")
	return lessons, nil
}

func (c *CurriculumSource) save(lessons []types.Lesson) error {
	data, err := json.MarshalIndent(lessons, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(c.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write curriculum %s: %w", c.path, err)
	}
	return nil
}

func parseCurriculum(text string) ([]types.Lesson, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var raw []types.Lesson
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse curriculum JSON: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	lessons := make([]types.Lesson, 0, len(raw))
	for _, l := range raw {
		l.Title = strings.TrimSpace(l.Title)
		key := strings.ToLower(l.Title)
		if l.Title == "" || seen[key] {
			continue
		}
		seen[key] = true
		lessons = append(lessons, l)
	}
	if len(lessons) == 0 {
		return nil, fmt.Errorf("curriculum has no lessons")
	}
	return lessons, nil
}
