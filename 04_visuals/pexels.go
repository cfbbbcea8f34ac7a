package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const pexelsSearchURL = "https://api.pexels.com/videos/search"

// PexelsFetcher searches Pexels for stock footage and downloads one clip.
type PexelsFetcher struct {
	apiKey     string
	perPage    int
	searchURL  string
	httpClient *http.Client
}

func NewPexelsFetcher(apiKey string, perPage int) *PexelsFetcher {
	return &PexelsFetcher{
		apiKey:     apiKey,
		perPage:    perPage,
		searchURL:  pexelsSearchURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type pexelsResponse struct {
	Videos []struct {
		ID         int `json:"id"`
		Duration   int `json:"duration"`
		VideoFiles []struct {
			FileType string `json:"file_type"`
			Width    int    `json:"width"`
			Height   int    `json:"height"`
			Link     string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Fetch downloads a clip for query into outFile. It prefers the first MP4 at
// least width x height and falls back to the first MP4 of any size.
func (p *PexelsFetcher) Fetch(ctx context.Context, query string, width, height int, minDuration float64, outFile string) error {
	if p.apiKey == "" {
		return fmt.Errorf("PEXELS_API_KEY not set")
	}

	orientation := "landscape"
	if width < height {
		orientation = "portrait"
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", orientation)
	params.Set("per_page", strconv.Itoa(p.perPage))
	params.Set("min_duration", strconv.Itoa(int(minDuration)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pexels search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from Pexels", resp.StatusCode)
	}

	var result pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse pexels response: %w", err)
	}

	link := pickVideo(result, width, height)
	if link == "" {
		return fmt.Errorf("no usable MP4 in pexels results for %q", query)
	}
	return download(ctx, p.httpClient, link, outFile)
}

func pickVideo(result pexelsResponse, width, height int) string {
	for _, v := range result.Videos {
		for _, f := range v.VideoFiles {
			if f.FileType == "video/mp4" && f.Width >= width && f.Height >= height {
				return f.Link
			}
		}
	}
	for _, v := range result.Videos {
		for _, f := range v.VideoFiles {
			if f.FileType == "video/mp4" {
				return f.Link
			}
		}
	}
	return ""
}

func download(ctx context.Context, client *http.Client, link, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", link, resp.StatusCode)
	}

	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(outFile)
		return fmt.Errorf("download %s: %w", link, err)
	}
	return f.Close()
}
