// Package fs provides a filesystem-backed blob store implementation.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

// Config holds configuration for the filesystem backend.
type Config struct {
	// BaseDir is the root directory blobs are stored under.
	BaseDir string
}

type fsBackend struct {
	baseDir string
}

// New creates a new filesystem-backed blob store rooted at cfg.BaseDir,
// creating the directory when needed.
func New(cfg Config) (docdepot.BlobStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &fsBackend{baseDir: cfg.BaseDir}, nil
}

func (b *fsBackend) Upload(ctx context.Context, key string, reader io.Reader) error {
	path := filepath.Join(b.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (b *fsBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(b.baseDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docdepot.ErrBlobNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (b *fsBackend) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := os.Stat(filepath.Join(b.baseDir, key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *fsBackend) Delete(ctx context.Context, key string) error {
	path := filepath.Join(b.baseDir, key)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove file: %w", err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(path))
	return nil
}

// cleanupEmptyDirectories removes parent directories a delete left
// empty, stopping at the base directory.
func (b *fsBackend) cleanupEmptyDirectories(dir string) {
	base := filepath.Clean(b.baseDir)
	for {
		dir = filepath.Clean(dir)
		if dir == base || !strings.HasPrefix(dir, base) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
