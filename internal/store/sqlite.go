package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/ksteinfeldt/wipbot/internal/registry"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore keeps the snapshot in normalised tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshot_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workspaces (
			user_id      TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS projects (
			channel_id         TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			position           INTEGER NOT NULL,
			title              TEXT NOT NULL,
			last_update        TEXT NOT NULL,
			current_words      INTEGER NOT NULL,
			goal_words         INTEGER NOT NULL,
			tracker_message_id TEXT NOT NULL,
			stage              TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id, position);

		CREATE TABLE IF NOT EXISTS metadata (
			channel_id TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			title      TEXT NOT NULL,
			genre      TEXT NOT NULL,
			goal_words INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *registry.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"snapshot_info", "workspaces", "projects", "metadata"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	info := map[string]string{
		"version":  strconv.Itoa(snap.Version),
		"saved_at": snap.SavedAt,
	}
	for k, v := range info {
		if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_info (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("store: write info: %w", err)
		}
	}

	for user, rec := range snap.Users {
		if rec.WorkspaceID != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO workspaces (user_id, workspace_id) VALUES (?, ?)`,
				user, rec.WorkspaceID); err != nil {
				return fmt.Errorf("store: write workspace %s: %w", user, err)
			}
		}
		for i, p := range rec.Projects {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO projects (channel_id, user_id, position, title, last_update, current_words, goal_words, tracker_message_id, stage)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ChannelID, user, i, p.Title, p.LastUpdate, p.Current, p.Goal, p.TrackerMessageID, p.Stage); err != nil {
				return fmt.Errorf("store: write project %s: %w", p.ChannelID, err)
			}
		}
	}

	for channel, m := range snap.Metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (channel_id, owner_id, title, genre, goal_words) VALUES (?, ?, ?, ?, ?)`,
			channel, m.Owner, m.Title, m.Genre, m.Goal); err != nil {
			return fmt.Errorf("store: write metadata %s: %w", channel, err)
		}
	}

	return tx.Commit()
}

// Load reads the stored snapshot. Returns ErrNotFound if nothing was
// ever saved.
func (s *SQLiteStore) Load(ctx context.Context) (*registry.Snapshot, error) {
	snap := &registry.Snapshot{
		Users:    make(map[string]registry.UserRecord),
		Metadata: make(map[string]registry.MetadataRecord),
	}

	var version string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_info WHERE key = 'version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read info: %w", err)
	}
	if snap.Version, err = strconv.Atoi(version); err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrCorrupt, version)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_info WHERE key = 'saved_at'`).Scan(&snap.SavedAt); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: read info: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id, workspace_id FROM workspaces`)
	if err != nil {
		return nil, fmt.Errorf("store: read workspaces: %w", err)
	}
	for rows.Next() {
		var user, workspace string
		if err := rows.Scan(&user, &workspace); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan workspace: %w", err)
		}
		rec := snap.Users[user]
		rec.WorkspaceID = workspace
		snap.Users[user] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read workspaces: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT user_id, channel_id, title, last_update, current_words, goal_words, tracker_message_id, stage
		 FROM projects ORDER BY user_id, position`)
	if err != nil {
		return nil, fmt.Errorf("store: read projects: %w", err)
	}
	for rows.Next() {
		var user string
		var p registry.ProjectRecord
		if err := rows.Scan(&user, &p.ChannelID, &p.Title, &p.LastUpdate, &p.Current, &p.Goal, &p.TrackerMessageID, &p.Stage); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan project: %v", ErrCorrupt, err)
		}
		rec := snap.Users[user]
		rec.Projects = append(rec.Projects, p)
		snap.Users[user] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read projects: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT channel_id, owner_id, title, genre, goal_words FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("store: read metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		var m registry.MetadataRecord
		if err := rows.Scan(&channel, &m.Owner, &m.Title, &m.Genre, &m.Goal); err != nil {
			return nil, fmt.Errorf("%w: scan metadata: %v", ErrCorrupt, err)
		}
		snap.Metadata[channel] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read metadata: %w", err)
	}

	return snap, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
