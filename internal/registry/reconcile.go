package registry

import (
	"context"
	"sort"
)

// CategoryLookup resolves a channel to the category it currently lives
// in. ok is false when the channel no longer exists or has no category.
type CategoryLookup func(ctx context.Context, channelID string) (categoryID string, ok bool, err error)

// ReconcileResult summarises a ReconcileWorkspaces run.
type ReconcileResult struct {
	// Resolved maps user to the live category found for them.
	Resolved map[string]string

	// Dropped lists users whose channels no longer resolve.
	Dropped []string
}

// ReconcileWorkspaces rebuilds the workspace table from the live channel
// graph. For every user with projects it asks lookup for the category of
// their channels, stopping at the first that resolves. Users whose
// channels do not resolve lose their entry.
//
// Users without projects when the rebuild starts are not looked up. Their
// binding survives if keep reports them (a conversation still setting
// them up), if they were bound after the rebuild started, or if their
// first project arrived while lookups were in flight. Any other such
// binding is stale and is discarded. keep may be nil.
//
// lookup is called without the registry lock held. A lookup error for one
// channel counts as unresolved; cancellation of ctx aborts the rebuild
// and leaves the table untouched.
func (r *Registry) ReconcileWorkspaces(ctx context.Context, lookup CategoryLookup, keep func(userID string) bool) (ReconcileResult, error) {
	r.mu.Lock()
	channels := make(map[string][]string, len(r.projects))
	for u, projects := range r.projects {
		for _, p := range projects {
			channels[u] = append(channels[u], p.ChannelID)
		}
	}
	bound := make(map[string]string, len(r.workspaces))
	for u, c := range r.workspaces {
		bound[u] = c
	}
	r.mu.Unlock()

	users := make([]string, 0, len(channels))
	for u := range channels {
		users = append(users, u)
	}
	sort.Strings(users)

	result := ReconcileResult{Resolved: make(map[string]string)}
	for _, u := range users {
		var found bool
		for _, c := range channels[u] {
			if err := ctx.Err(); err != nil {
				return ReconcileResult{}, err
			}
			category, ok, err := lookup(ctx, c)
			if err != nil || !ok || category == "" {
				continue
			}
			result.Resolved[u] = category
			found = true
			break
		}
		if !found {
			result.Dropped = append(result.Dropped, u)
		}
	}

	rebuilt := make(map[string]string, len(result.Resolved))
	for u, c := range result.Resolved {
		rebuilt[u] = c
	}

	kept := make(map[string]bool)
	if keep != nil {
		for u := range bound {
			if _, looked := channels[u]; !looked && keep(u) {
				kept[u] = true
			}
		}
	}

	r.mu.Lock()
	for u, c := range r.workspaces {
		if _, looked := channels[u]; looked {
			continue
		}
		prev, before := bound[u]
		if !before || prev != c || len(r.projects[u]) > 0 || kept[u] {
			rebuilt[u] = c
		}
	}
	r.workspaces = rebuilt
	r.mu.Unlock()

	return result, nil
}
