package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"ai-course-pipeline/config"
)

func TestNew_JSONWithStage(t *testing.T) {
	var buf bytes.Buffer
	logger := Stage(New(config.LogConfig{Level: "debug"}, &buf), "render")
	logger.Debug().Int("slides", 5).Msg("rendering")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %q", buf.String())
	}
	if line["stage"] != "render" || line["message"] != "rendering" || line["level"] != "debug" {
		t.Fatalf("line = %v", line)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "warn"}, &buf)
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "chatty"}, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}
}
