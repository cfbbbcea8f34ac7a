package visuals

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoClip means the library has nothing usable for the request.
var ErrNoClip = errors.New("no background clip available")

const (
	libraryTagsFile  = "tags.json"
	libraryUsageFile = "usage.json"
	recentRuns       = 5
)

// BackgroundLibrary picks looping background clips from a local directory.
// tags.json maps file name to tags; keys starting with "_" are notes.
// Clips used in the last few runs are skipped so consecutive videos differ.
type BackgroundLibrary struct {
	dir   string
	tags  map[string][]string
	usage []usageRecord
	pick  func(n int) int
}

type usageRecord struct {
	Key  string `json:"key"`
	File string `json:"file"`
}

// NewBackgroundLibrary loads the tags and usage log from dir. A missing
// tags.json gives an empty library.
func NewBackgroundLibrary(dir string) (*BackgroundLibrary, error) {
	tags, err := loadTags(filepath.Join(dir, libraryTagsFile))
	if err != nil {
		return nil, fmt.Errorf("load background tags: %w", err)
	}
	lib := &BackgroundLibrary{dir: dir, tags: tags, pick: rand.IntN}
	if data, err := os.ReadFile(filepath.Join(dir, libraryUsageFile)); err == nil {
		_ = json.Unmarshal(data, &lib.usage)
	}
	return lib, nil
}

// Pick returns the path of the best matching clip for topic and records it
// under key (the run directory) in the usage log.
func (l *BackgroundLibrary) Pick(topic, key string) (string, error) {
	if len(l.tags) == 0 {
		return "", ErrNoClip
	}
	recent := l.recentlyUsed()

	type scored struct {
		file  string
		score int
	}
	var candidates []scored
	for file, clipTags := range l.tags {
		if recent[file] {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.dir, file)); err != nil {
			continue
		}
		candidates = append(candidates, scored{file, matchScore(topic, clipTags)})
	}
	if len(candidates) == 0 {
		return "", ErrNoClip
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].file < candidates[j].file
	})
	// random among the top three so the same topic words do not always give the same clip
	chosen := candidates[l.pick(min(3, len(candidates)))]

	l.usage = append(l.usage, usageRecord{Key: key, File: chosen.file})
	if err := l.saveUsage(); err != nil {
		return "", fmt.Errorf("save background usage: %w", err)
	}
	return filepath.Join(l.dir, chosen.file), nil
}

func (l *BackgroundLibrary) recentlyUsed() map[string]bool {
	used := make(map[string]bool)
	keys := make(map[string]bool)
	for i := len(l.usage) - 1; i >= 0; i-- {
		rec := l.usage[i]
		if !keys[rec.Key] {
			if len(keys) == recentRuns {
				break
			}
			keys[rec.Key] = true
		}
		used[rec.File] = true
	}
	return used
}

func (l *BackgroundLibrary) saveUsage() error {
	data, err := json.MarshalIndent(l.usage, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.dir, libraryUsageFile), data, 0o644)
}

// matchScore counts topic words found in the clip's tags.
func matchScore(topic string, clipTags []string) int {
	tagSet := make(map[string]bool, len(clipTags))
	for _, t := range clipTags {
		tagSet[strings.ToLower(t)] = true
	}
	score := 0
	for _, w := range strings.Fields(strings.ToLower(topic)) {
		if tagSet[strings.Trim(w, ".,:;!?()\"'")] {
			score += 10
		}
	}
	return score
}

func loadTags(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		out[k] = tags
	}
	return out, nil
}
