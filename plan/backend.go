package plan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend persists the serialized content plan. Read returns nil data and a
// nil error when nothing has been stored yet. Write must replace the previous
// snapshot atomically.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	fmt.Stringer
}

// FileBackend stores the plan in a local JSON file.
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (b *FileBackend) String() string { return b.Path }

func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Write writes to a temp file in the same directory and renames it over the
// target so a crash never leaves a partial plan behind.
func (b *FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", b.Path, err)
	}

	tmp, err := os.CreateTemp(dir, ".content-plan-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", b.Path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", b.Path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", b.Path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", b.Path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", b.Path, err)
	}
	if err := os.Rename(tmpPath, b.Path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", b.Path, err)
	}
	return nil
}
