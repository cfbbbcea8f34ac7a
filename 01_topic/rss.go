package topic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
)

// RSSSource takes the newest unused item title from a list of feeds.
type RSSSource struct {
	feeds    []string
	lookback time.Duration
	parser   *gofeed.Parser
	now      func() time.Time
	logger   zerolog.Logger
}

func NewRSSSource(cfg *config.Config, logger zerolog.Logger) *RSSSource {
	parser := gofeed.NewParser()
	parser.UserAgent = redditUserAgent
	return &RSSSource{
		feeds:    cfg.Topic.FeedURLs,
		lookback: time.Duration(cfg.Topic.LookbackDays) * 24 * time.Hour,
		parser:   parser,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *RSSSource) Next(ctx context.Context, date string, used map[string]bool) (string, error) {
	cutoff := s.now().Add(-s.lookback)

	var (
		bestTitle string
		bestTime  time.Time
		lastErr   error
	)
	for _, url := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("feed", url).Msg("feed fetch failed")
			lastErr = err
			continue
		}
		for _, item := range feed.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" || used[strings.ToLower(title)] {
				continue
			}
			var published time.Time
			if item.PublishedParsed != nil {
				published = *item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				published = *item.UpdatedParsed
			}
			if !published.IsZero() && published.Before(cutoff) {
				continue
			}
			if bestTitle == "" || published.After(bestTime) {
				bestTitle, bestTime = title, published
			}
		}
	}

	if bestTitle == "" {
		if lastErr != nil {
			return "", fmt.Errorf("no feed items found: %w", lastErr)
		}
		return "", fmt.Errorf("%w: no recent unused feed items", ErrExhausted)
	}
	s.logger.Info().Str("date", date).Str("title", bestTitle).Msg("selected feed topic")
	return bestTitle, nil
}
