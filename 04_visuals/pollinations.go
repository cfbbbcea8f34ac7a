package visuals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const pollinationsBaseURL = "https://image.pollinations.ai/prompt/"

// PollinationsFetcher generates AI images via Pollinations.ai (free, no key needed)
type PollinationsFetcher struct {
	baseURL    string
	attempts   int
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewPollinationsFetcher() *PollinationsFetcher {
	return &PollinationsFetcher{
		baseURL:    pollinationsBaseURL,
		attempts:   3,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sleep:      sleepCtx,
	}
}

// Fetch generates a background image for topic and saves it to outFile.
func (p *PollinationsFetcher) Fetch(ctx context.Context, topic string, width, height int, outFile string) error {
	prompt := enhancePrompt(topic)
	imageURL := fmt.Sprintf("%s%s?width=%d&height=%d&nologo=true&model=flux",
		p.baseURL, url.PathEscape(prompt), width, height)

	// Pollinations occasionally times out
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.downloadImage(ctx, imageURL, outFile)
		if err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		if sleepErr := p.sleep(ctx, time.Duration(attempt)*3*time.Second); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("pollinations fetch failed after %d attempts: %w", p.attempts, err)
}

func (p *PollinationsFetcher) downloadImage(ctx context.Context, imageURL, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AICoursePipeline/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from Pollinations", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// An error HTML page is tiny compared to any real image
	if len(data) < 100 {
		return fmt.Errorf("response too small (%d bytes), likely an error", len(data))
	}

	return os.WriteFile(outFile, data, 0o644)
}

// enhancePrompt adds a consistent tech-explainer style to the topic.
func enhancePrompt(topic string) string {
	return fmt.Sprintf("%s, abstract technology background, dark blue tones, soft glow, minimal, 4K, no text, no watermark, no people", topic)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
