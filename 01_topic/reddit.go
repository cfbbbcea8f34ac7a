package topic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"ai-course-pipeline/config"
)

const redditUserAgent = "ai-course-pipeline/1.0"

// hookKeywords boost a post's score when present
var hookKeywords = []string{
	"llm", "gpt", "gemini", "claude", "llama", "rag", "agent", "embedding",
	"fine-tun", "open source", "open-source", "release", "benchmark",
	"python", "api", "inference", "quantiz", "prompt", "vector", "tutorial",
}

// hotLister is the part of the reddit subreddit service we use.
type hotLister interface {
	HotPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
}

// RedditSource turns the best recent post across subreddits into a topic.
type RedditSource struct {
	subreddits []string
	minScore   int
	lookback   time.Duration
	posts      hotLister
	now        func() time.Time
	logger     zerolog.Logger
}

// NewRedditSource uses an authenticated client when a script app's full
// credentials are configured, otherwise the read-only client.
func NewRedditSource(cfg *config.Config, logger zerolog.Logger) (*RedditSource, error) {
	var (
		client *reddit.Client
		err    error
	)
	s := cfg.Secrets
	if s.RedditClientID != "" && s.RedditClientSecret != "" && s.RedditUsername != "" && s.RedditPassword != "" {
		client, err = reddit.NewClient(reddit.Credentials{
			ID:       s.RedditClientID,
			Secret:   s.RedditClientSecret,
			Username: s.RedditUsername,
			Password: s.RedditPassword,
		}, reddit.WithUserAgent(redditUserAgent))
	} else {
		client, err = reddit.NewReadonlyClient(reddit.WithUserAgent(redditUserAgent))
	}
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return newRedditSource(cfg, client.Subreddit, logger), nil
}

func newRedditSource(cfg *config.Config, posts hotLister, logger zerolog.Logger) *RedditSource {
	return &RedditSource{
		subreddits: cfg.Topic.Subreddits,
		minScore:   cfg.Topic.MinRedditScore,
		lookback:   time.Duration(cfg.Topic.LookbackDays) * 24 * time.Hour,
		posts:      posts,
		now:        time.Now,
		logger:     logger,
	}
}

type candidate struct {
	title     string
	subreddit string
	score     int
}

func (r *RedditSource) Next(ctx context.Context, date string, used map[string]bool) (string, error) {
	cutoff := r.now().Add(-r.lookback)

	var candidates []candidate
	var lastErr error
	for _, sub := range r.subreddits {
		posts, _, err := r.posts.HotPosts(ctx, sub, &reddit.ListOptions{Limit: 25})
		if err != nil {
			r.logger.Warn().Err(err).Str("subreddit", sub).Msg("reddit fetch failed")
			lastErr = err
			continue
		}
		for _, p := range posts {
			if p == nil || p.Stickied || p.NSFW {
				continue
			}
			if p.Created != nil && p.Created.Before(cutoff) {
				continue
			}
			if p.Score < r.minScore {
				continue
			}
			title := strings.TrimSpace(p.Title)
			if title == "" || used[strings.ToLower(title)] {
				continue
			}
			candidates = append(candidates, candidate{
				title:     title,
				subreddit: sub,
				score:     r.scorePost(p),
			})
		}
	}

	if len(candidates) == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("no reddit posts found: %w", lastErr)
		}
		return "", fmt.Errorf("%w: no qualifying reddit posts in %v", ErrExhausted, r.subreddits)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	best := candidates[0]
	r.logger.Info().
		Str("date", date).
		Str("subreddit", best.subreddit).
		Int("score", best.score).
		Str("title", best.title).
		Msg("selected reddit topic")
	return best.title, nil
}

func (r *RedditSource) scorePost(p *reddit.Post) int {
	score := p.Score

	text := strings.ToLower(p.Title + " " + p.Body)
	for _, kw := range hookKeywords {
		if strings.Contains(text, kw) {
			score += 50
		}
	}

	// Recency bonus: posted within the last 3 days
	if p.Created != nil && r.now().Sub(p.Created.Time) < 72*time.Hour {
		score += 200
	}

	// Discussion bonus
	if p.NumberOfComments > 50 {
		score += 75
	}
	return score
}
