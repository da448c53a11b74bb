package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrCorruptSnapshot indicates a snapshot that cannot be imported. The
// registry is left unchanged when Restore returns it.
var ErrCorruptSnapshot = errors.New("corrupt registry snapshot")

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	// Version is the schema version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was taken (RFC 3339).
	SavedAt string `json:"saved_at"`

	// Users maps user ID to workspace and ordered projects.
	Users map[string]UserRecord `json:"users"`

	// Metadata is the flat channel index.
	Metadata map[string]MetadataRecord `json:"metadata"`
}

// UserRecord is one user's persisted state.
type UserRecord struct {
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Projects    []ProjectRecord `json:"projects"`
}

// ProjectRecord is a persisted Project. LastUpdate is RFC 3339 text.
type ProjectRecord struct {
	ChannelID        string `json:"channel_id"`
	Title            string `json:"title"`
	LastUpdate       string `json:"last_update"`
	Current          int    `json:"current_word_count"`
	Goal             int    `json:"goal_word_count"`
	TrackerMessageID string `json:"tracker_message_id"`
	Stage            string `json:"stage"`
}

// MetadataRecord is a persisted Metadata entry.
type MetadataRecord struct {
	Owner string `json:"owner_id"`
	Title string `json:"title"`
	Genre string `json:"genre"`
	Goal  int    `json:"goal_word_count"`
}

// Snapshot exports the workspace, project and metadata tables. Goal
// prompts and captured goals are transient and not included.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		Version:  CurrentSnapshotVersion,
		SavedAt:  r.clock.Now().UTC().Format(time.RFC3339),
		Users:    make(map[string]UserRecord),
		Metadata: make(map[string]MetadataRecord, len(r.metadata)),
	}

	for u, projects := range r.projects {
		rec := UserRecord{WorkspaceID: r.workspaces[u], Projects: make([]ProjectRecord, 0, len(projects))}
		for _, p := range projects {
			rec.Projects = append(rec.Projects, ProjectRecord{
				ChannelID:        p.ChannelID,
				Title:            p.Title,
				LastUpdate:       p.LastUpdate.UTC().Format(time.RFC3339Nano),
				Current:          p.Current,
				Goal:             p.Goal,
				TrackerMessageID: p.TrackerMessageID,
				Stage:            p.Stage,
			})
		}
		snap.Users[u] = rec
	}
	for u, ws := range r.workspaces {
		if _, ok := snap.Users[u]; !ok {
			snap.Users[u] = UserRecord{WorkspaceID: ws, Projects: []ProjectRecord{}}
		}
	}
	for c, m := range r.metadata {
		snap.Metadata[c] = MetadataRecord(m)
	}
	return snap
}

// Restore replaces the registry tables with the snapshot contents. The
// whole snapshot is validated first; on any malformed record nothing is
// imported and an error wrapping ErrCorruptSnapshot is returned.
func (r *Registry) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	if snap.Version > CurrentSnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}

	staged := &Registry{clock: r.clock}
	staged.reset()

	for u, rec := range snap.Users {
		if u == "" {
			return fmt.Errorf("%w: empty user id", ErrCorruptSnapshot)
		}
		if rec.WorkspaceID != "" {
			staged.workspaces[u] = rec.WorkspaceID
		}
		for i, pr := range rec.Projects {
			if pr.ChannelID == "" {
				return fmt.Errorf("%w: user %s project %d has no channel", ErrCorruptSnapshot, u, i)
			}
			ts, err := time.Parse(time.RFC3339Nano, pr.LastUpdate)
			if err != nil {
				return fmt.Errorf("%w: channel %s timestamp %q: %v", ErrCorruptSnapshot, pr.ChannelID, pr.LastUpdate, err)
			}
			staged.projects[u] = append(staged.projects[u], Project{
				ChannelID:        pr.ChannelID,
				Title:            pr.Title,
				LastUpdate:       ts.UTC(),
				Current:          pr.Current,
				Goal:             pr.Goal,
				TrackerMessageID: pr.TrackerMessageID,
				Stage:            pr.Stage,
			})
		}
	}
	for c, m := range snap.Metadata {
		staged.metadata[c] = Metadata(m)
	}
	if err := staged.verifyLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects = staged.projects
	r.metadata = staged.metadata
	r.workspaces = staged.workspaces
	return nil
}
