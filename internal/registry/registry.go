package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ksteinfeldt/wipbot/internal/clock"
)

var (
	// ErrNotFound indicates the channel or user is not in the registry.
	ErrNotFound = errors.New("not found in registry")

	// ErrNoChange indicates an update carried neither a word count nor a stage.
	ErrNoChange = errors.New("update carries no change")

	// ErrDuplicateWorkspace indicates the user already owns a workspace.
	ErrDuplicateWorkspace = errors.New("workspace already exists")

	// ErrDuplicateChannel indicates the channel is already tracked.
	ErrDuplicateChannel = errors.New("channel already tracked")

	// ErrInvalidProject indicates a project is missing its user or channel.
	ErrInvalidProject = errors.New("invalid project")
)

// Registry owns every table the bot keeps about members. All methods are
// safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	clock clock.Clock

	projects    map[string][]Project // user → ordered projects
	metadata    map[string]Metadata  // channel → metadata
	workspaces  map[string]string    // user → category
	goalPrompts map[string]struct{}
	goals       map[string]string
}

// New returns an empty Registry that stamps updates with clk.
func New(clk clock.Clock) *Registry {
	r := &Registry{clock: clk}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.projects = make(map[string][]Project)
	r.metadata = make(map[string]Metadata)
	r.workspaces = make(map[string]string)
	r.goalPrompts = make(map[string]struct{})
	r.goals = make(map[string]string)
}

// BindWorkspace records workspaceID as userID's workspace. Returns
// ErrDuplicateWorkspace if the user already has one.
func (r *Registry) BindWorkspace(userID, workspaceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workspaces[userID]; ok {
		return fmt.Errorf("%w: user %s has %s", ErrDuplicateWorkspace, userID, existing)
	}
	r.workspaces[userID] = workspaceID
	return nil
}

// Workspace returns the workspace bound to userID.
func (r *Registry) Workspace(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.workspaces[userID]
	return id, ok
}

// AddProject appends a project to the user's list and indexes its
// channel. Either both tables change or neither does.
func (r *Registry) AddProject(userID string, p NewProject) (Project, error) {
	if userID == "" || p.ChannelID == "" {
		return Project{}, ErrInvalidProject
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.metadata[p.ChannelID]; ok {
		return Project{}, fmt.Errorf("%w: %s", ErrDuplicateChannel, p.ChannelID)
	}

	project := Project{
		ChannelID:        p.ChannelID,
		Title:            p.Title,
		LastUpdate:       r.clock.Now().UTC(),
		Current:          p.Current,
		Goal:             p.Goal,
		TrackerMessageID: p.TrackerMessageID,
		Stage:            p.Stage,
	}
	r.projects[userID] = append(r.projects[userID], project)
	r.metadata[p.ChannelID] = Metadata{
		Owner: userID,
		Title: p.Title,
		Genre: p.Genre,
		Goal:  p.Goal,
	}
	return project, nil
}

// Lookup returns the tracked project for channelID.
func (r *Registry) Lookup(channelID string) (Tracked, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, i, err := r.findLocked(channelID)
	if err != nil {
		return Tracked{}, err
	}
	return Tracked{Owner: owner, Project: r.projects[owner][i], Meta: r.metadata[channelID]}, nil
}

// IsTracked reports whether channelID is a project channel.
func (r *Registry) IsTracked(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.metadata[channelID]
	return ok
}

// findLocked resolves channelID to its owner and index in the owner's
// project list. Caller must hold mu.
func (r *Registry) findLocked(channelID string) (string, int, error) {
	meta, ok := r.metadata[channelID]
	if !ok {
		return "", 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	for i, p := range r.projects[meta.Owner] {
		if p.ChannelID == channelID {
			return meta.Owner, i, nil
		}
	}
	return "", 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
}

// RecordUpdate applies a tracker update to the project in channelID and
// returns the merged record. An update with no fields returns ErrNoChange
// and leaves the project untouched.
func (r *Registry) RecordUpdate(channelID string, u Update) (Tracked, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, i, err := r.findLocked(channelID)
	if err != nil {
		return Tracked{}, err
	}
	if u.Words == nil && u.Stage == nil {
		return Tracked{}, ErrNoChange
	}

	p := &r.projects[owner][i]
	if u.Words != nil {
		p.Current = *u.Words
	}
	if u.Stage != nil {
		p.Stage = *u.Stage
	}
	p.LastUpdate = r.clock.Now().UTC()

	return Tracked{Owner: owner, Project: *p, Meta: r.metadata[channelID]}, nil
}

// Projects returns a copy of userID's project list.
func (r *Registry) Projects(userID string) []Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.projects[userID])
}

// HasProjects reports whether userID owns at least one project.
func (r *Registry) HasProjects(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.projects[userID]) > 0
}

// Users returns every user with projects or a workspace, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(r.projects)+len(r.workspaces))
	for u := range r.projects {
		seen[u] = struct{}{}
	}
	for u := range r.workspaces {
		seen[u] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// RemoveUser drops the user's workspace, projects and metadata. Removing
// an unknown user is a no-op. Returns whether anything was removed.
func (r *Registry) RemoveUser(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hadWorkspace := r.workspaces[userID]
	projects, hadProjects := r.projects[userID]

	for _, p := range projects {
		delete(r.metadata, p.ChannelID)
	}
	delete(r.projects, userID)
	delete(r.workspaces, userID)
	delete(r.goalPrompts, userID)
	delete(r.goals, userID)

	return hadWorkspace || hadProjects
}

// ListInactive returns the titles of userID's projects not updated within
// threshold.
func (r *Registry) ListInactive(userID string, threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inactiveLocked(userID, r.clock.Now().Add(-threshold))
}

// Stale returns, for every user with at least one stale project, the
// titles of those projects.
func (r *Registry) Stale(threshold time.Duration) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-threshold)
	stale := make(map[string][]string)
	for u := range r.projects {
		if titles := r.inactiveLocked(u, cutoff); len(titles) > 0 {
			stale[u] = titles
		}
	}
	return stale
}

func (r *Registry) inactiveLocked(userID string, cutoff time.Time) []string {
	var titles []string
	for _, p := range r.projects[userID] {
		if p.LastUpdate.Before(cutoff) {
			titles = append(titles, p.Title)
		}
	}
	return titles
}

// MarkGoalPrompt records that userID was sent the weekly goal prompt.
func (r *Registry) MarkGoalPrompt(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.goalPrompts[userID] = struct{}{}
}

// ConsumeGoalPrompt stores text as userID's weekly goal if a prompt is
// pending, clearing the flag. Returns false if no prompt was pending.
func (r *Registry) ConsumeGoalPrompt(userID, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.goalPrompts[userID]; !ok {
		return false
	}
	delete(r.goalPrompts, userID)
	r.goals[userID] = text
	return true
}

// GoalPending reports whether userID owes a weekly goal reply.
func (r *Registry) GoalPending(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.goalPrompts[userID]
	return ok
}

// WeeklyGoal returns the last goal captured for userID.
func (r *Registry) WeeklyGoal(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[userID]
	return g, ok
}

// verifyLocked checks that project lists and metadata are a bijection.
func (r *Registry) verifyLocked() error {
	count := 0
	for owner, projects := range r.projects {
		for _, p := range projects {
			meta, ok := r.metadata[p.ChannelID]
			if !ok {
				return fmt.Errorf("channel %s of %s has no metadata", p.ChannelID, owner)
			}
			if meta.Owner != owner {
				return fmt.Errorf("channel %s listed under %s but owned by %s", p.ChannelID, owner, meta.Owner)
			}
			count++
		}
	}
	if count != len(r.metadata) {
		return fmt.Errorf("%d projects but %d metadata entries", count, len(r.metadata))
	}
	return nil
}
