package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ksteinfeldt/wipbot/internal/registry"
)

const lockRetry = 50 * time.Millisecond

// FileStore keeps the snapshot as indented JSON. A sidecar lock file
// serialises access between processes (the bot and the export command).
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file returns ErrNotFound; malformed
// JSON returns an error wrapping ErrCorrupt.
func (s *FileStore) Load(ctx context.Context) (*registry.Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	locked, err := s.lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", s.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking %s: not acquired", s.path)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path) //nolint:gosec // G304: path from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var snap registry.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically via a temp file and rename.
func (s *FileStore) Save(ctx context.Context, snap *registry.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking %s: %w", s.path, err)
	}
	if !locked {
		return fmt.Errorf("locking %s: not acquired", s.path)
	}
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}

// Close releases nothing; the lock is only held during Load and Save.
func (s *FileStore) Close() error { return nil }
