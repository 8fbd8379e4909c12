// Package local writes report artifacts to the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory reports are written under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes artifacts below a base directory. Writes go through an
// os.Root so paths cannot escape it.
type BlobStore struct {
	baseDir string
}

// New creates the base directory when needed and checks it is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}
	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject writes the artifact atomically (temp file then rename) and
// returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, name string, _ string, data io.Reader) (string, error) {
	clean := path.Clean(strings.TrimSpace(name))
	if clean == "" || clean == "." {
		return "", fmt.Errorf("path is required")
	}
	root, err := os.OpenRoot(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("open base directory: %w", err)
	}
	defer func() { _ = root.Close() }()

	if dir := path.Dir(clean); dir != "." {
		if err := root.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create parent directories: %w", err)
		}
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	tmp := clean + ".tmp"
	if err := root.WriteFile(tmp, body, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := root.Rename(tmp, clean); err != nil {
		_ = root.Remove(tmp)
		return "", fmt.Errorf("rename file: %w", err)
	}
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}
