package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalWriter writes artifacts into a directory.
type LocalWriter struct {
	dir string
}

func NewLocalWriter(dir string) *LocalWriter {
	if dir == "" {
		dir = "."
	}
	return &LocalWriter{dir: dir}
}

func (w *LocalWriter) Write(ctx context.Context, a Artifact) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(w.dir, filepath.Base(a.Name))
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
