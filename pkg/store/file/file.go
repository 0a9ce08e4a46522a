// Package file provides a filesystem-backed [store.Store]. Each key is kept
// in its own JSON file under a root directory; writes go through a temp file
// and an atomic rename so a crash never leaves a half-written value behind.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/solace/pkg/store"
)

var _ store.Store = (*Store)(nil)

// ErrInvalidKey is returned when a key would escape the root directory.
var ErrInvalidKey = errors.New("file store: invalid key")

// Store keeps one file per key under root.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created if missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory holding the value files.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key+".json"), nil
}

// Get implements [store.Store.Get].
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("file store: read %s: %w", key, err)
	}
	return data, nil
}

// Set implements [store.Store.Set].
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	return nil
}

// Delete implements [store.Store.Delete].
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: delete %s: %w", key, err)
	}
	return nil
}

// Ping verifies the root directory still exists and is a directory.
func (s *Store) Ping(context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("file store: ping: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("file store: ping: %s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
