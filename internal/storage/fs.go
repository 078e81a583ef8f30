package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore implements the Backend interface on the local filesystem.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-based storage backend rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FSStore{root: absRoot}, nil
}

func (s *FSStore) Provider() string { return "fs" }

// path maps a handle onto the root, rejecting traversal outside it.
func (s *FSStore) path(handle string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(handle))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: handle escapes root: %s", handle)
	}
	return full, nil
}

func (s *FSStore) Put(_ context.Context, handle string, data []byte) error {
	full, err := s.path(handle)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: temp file then rename on the same partition, so a
	// concurrent download never observes a half-written artifact.
	tmp, err := os.CreateTemp(dir, "export-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, handle string) ([]byte, error) {
	rc, err := s.Open(ctx, handle)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *FSStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	full, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: handle not found: %s", handle)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, handle string) error {
	full, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil // idempotent delete
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}
