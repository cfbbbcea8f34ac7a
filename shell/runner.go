// Package shell runs the external media tools (ffmpeg, ffprobe, edge-tts,
// gtts-cli, ImageMagick) behind an interface so stages can be tested with a stub.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts exec.CommandContext.
type CommandRunner interface {
	// Run executes name with args and returns any error.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes name with args and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner shells out to the system.
type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s exited with error: %w\noutput:\n%s", name, err, tail(out, 2000))
	}
	return nil
}

func (ExecCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s exited with error: %w\nstderr:\n%s", name, err, tail([]byte(stderr.String()), 2000))
	}
	return out, nil
}

// LookPath reports whether name is on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// tail keeps the last n bytes; ffmpeg puts the useful error at the end.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
