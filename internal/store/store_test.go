package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/registry"
)

func sampleRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(clock.Fake(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)))
	if err := reg.BindWorkspace("alex", "cat-1"); err != nil {
		t.Fatal(err)
	}
	if err := reg.BindWorkspace("sam", "cat-2"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []struct{ user, channel, title string }{
		{"alex", "chan-b", "Second Added First"},
		{"alex", "chan-a", "Added Second"},
	} {
		if _, err := reg.AddProject(p.user, registry.NewProject{
			Title: p.title, Genre: "Fantasy", Current: 10, Goal: 100, Stage: "drafting",
			ChannelID: p.channel, TrackerMessageID: "msg-" + p.channel,
		}); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func assertRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	original := sampleRegistry(t)

	if err := s.Save(ctx, original.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	restored := registry.New(clock.Real())
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want := original.Projects("alex")
	got := restored.Projects("alex")
	if len(got) != len(want) {
		t.Fatalf("projects = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ChannelID != want[i].ChannelID || !got[i].LastUpdate.Equal(want[i].LastUpdate) {
			t.Errorf("project %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if ws, ok := restored.Workspace("sam"); !ok || ws != "cat-2" {
		t.Errorf("workspace-only user lost: (%q, %v)", ws, ok)
	}
	tracked, err := restored.Lookup("chan-a")
	if err != nil || tracked.Meta.Genre != "Fantasy" {
		t.Errorf("metadata = %+v, %v", tracked, err)
	}

	// Saving again replaces rather than appends.
	if err := s.Save(ctx, restored.Snapshot()); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	snap, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if n := len(snap.Metadata); n != 2 {
		t.Errorf("metadata entries = %d, want 2", n)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	assertRoundTrip(t, NewFileStore(filepath.Join(t.TempDir(), "data", "registry.json")))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewFileStore(filepath.Join(dir, "missing.json")).Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("file: expected ErrNotFound, got: %v", err)
	}

	s, err := NewSQLiteStore(filepath.Join(dir, "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("sqlite: expected ErrNotFound, got: %v", err)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(`{"version": 1, "users": [`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got: %v", err)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "registry.json"))
	if err := s.Save(context.Background(), sampleRegistry(t).Snapshot()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendFile, filepath.Join(dir, "r.json"))
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("Open(file) = %T", s)
	}

	s, err = Open(BackendSQLite, filepath.Join(dir, "r.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T", s)
	}
	s.Close()

	if _, err := Open("postgres", "x"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got: %v", err)
	}
}
