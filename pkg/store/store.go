// Package store defines the small key/value persistence layer used to keep
// conversation state across restarts.
//
// Two keys are used by Solace:
//
//   - [KeySession] holds the bounded session history as a JSON array of
//     {"user","ai"} objects.
//   - [KeyFirstLaunch] holds a JSON boolean recording that the welcome notice
//     has been acknowledged.
//
// Backends live in sub-packages (store/file, store/postgres). [Memory] is an
// in-process implementation for ephemeral runs. All implementations must be
// safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/solace/pkg/session"
)

// Well-known keys.
const (
	KeySession     = "therapySession"
	KeyFirstLaunch = "firstLaunchDone"
)

// ErrNotFound is returned by [Store.Get] when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal persistent key/value store. Values are opaque byte
// slices; the helpers in this package encode them as JSON.
type Store interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// LoadSession reads the persisted session history. A missing key yields an
// empty slice and no error.
func LoadSession(ctx context.Context, s Store) ([]session.Entry, error) {
	data, err := s.Get(ctx, KeySession)
	if errors.Is(err, ErrNotFound) {
		return []session.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return session.Unmarshal(data)
}

// SaveSession persists entries under [KeySession].
func SaveSession(ctx context.Context, s Store, entries []session.Entry) error {
	data, err := session.Marshal(entries)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeySession, data)
}

// ClearSession removes the persisted session history.
func ClearSession(ctx context.Context, s Store) error {
	return s.Delete(ctx, KeySession)
}

// FirstLaunchDone reports whether the welcome notice was acknowledged.
// A missing key means false.
func FirstLaunchDone(ctx context.Context, s Store) (bool, error) {
	data, err := s.Get(ctx, KeyFirstLaunch)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var done bool
	if err := json.Unmarshal(data, &done); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", KeyFirstLaunch, err)
	}
	return done, nil
}

// MarkFirstLaunchDone records that the welcome notice was acknowledged.
func MarkFirstLaunchDone(ctx context.Context, s Store) error {
	return s.Set(ctx, KeyFirstLaunch, []byte("true"))
}
