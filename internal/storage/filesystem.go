package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes replicated images into one public directory. The directory
// is created on first use, so a store can be built before it exists.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	return &FileStore{basePath: filepath.Clean(basePath)}, nil
}

// EnsureDir creates the root directory if it is absent. Concurrent callers
// racing to create it all succeed.
func (s *FileStore) EnsureDir() error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	return nil
}

// CopyFile copies src byte-for-byte to <base>/<name>, replacing any existing
// file of that name, and returns the destination path. The copy is written to
// a temporary file first so readers never observe a partial image.
func (s *FileStore) CopyFile(ctx context.Context, src, name string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanName, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("storage: open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(s.basePath, "."+cleanName+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return "", fmt.Errorf("storage: copy: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storage: close temp file: %w", err)
	}

	dest := filepath.Join(s.basePath, cleanName)
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storage: replace destination: %w", err)
	}
	return dest, nil
}

// sanitizeName accepts a bare file name only.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", errors.New("storage: file name is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: invalid file name %q", name)
	}
	return name, nil
}
