// Package store persists registry snapshots, either as a JSON file or in
// a SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksteinfeldt/wipbot/internal/registry"
)

var (
	// ErrNotFound indicates nothing has been saved yet.
	ErrNotFound = errors.New("no saved registry")

	// ErrCorrupt indicates saved state that cannot be read back.
	ErrCorrupt = errors.New("saved registry is corrupt")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store saves and loads registry snapshots.
type Store interface {
	Load(ctx context.Context) (*registry.Snapshot, error)
	Save(ctx context.Context, snap *registry.Snapshot) error
	Close() error
}

// Open returns the Store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
