package registry

import (
	"context"
	"errors"
	"maps"
	"testing"
)

// channelGraph is a static stand-in for the platform's channel → category
// mapping.
type channelGraph map[string]string

func (g channelGraph) lookup(_ context.Context, channelID string) (string, bool, error) {
	if channelID == "broken" {
		return "", false, errors.New("platform unavailable")
	}
	c, ok := g[channelID]
	return c, ok, nil
}

func TestReconcileWorkspaces(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.BindWorkspace("alex", "stale-cat"); err != nil {
		t.Fatal(err)
	}
	if err := r.BindWorkspace("ghost", "cat-ghost"); err != nil {
		t.Fatal(err)
	}
	addProject(t, r, "alex", "broken", "Unreachable")
	addProject(t, r, "alex", "chan-1", "One")
	addProject(t, r, "sam", "chan-2", "Two")
	addProject(t, r, "gone", "chan-deleted", "Deleted")

	graph := channelGraph{"chan-1": "cat-alex", "chan-2": "cat-sam"}
	result, err := r.ReconcileWorkspaces(context.Background(), graph.lookup, nil)
	if err != nil {
		t.Fatalf("ReconcileWorkspaces: %v", err)
	}

	if ws, _ := r.Workspace("alex"); ws != "cat-alex" {
		t.Errorf("alex workspace = %q, want cat-alex", ws)
	}
	if ws, _ := r.Workspace("sam"); ws != "cat-sam" {
		t.Errorf("sam workspace = %q, want cat-sam", ws)
	}
	if _, ok := r.Workspace("gone"); ok {
		t.Error("user with unresolvable channels should lose workspace")
	}
	if _, ok := r.Workspace("ghost"); ok {
		t.Error("rebuild should discard entries for users without projects")
	}
	if len(result.Dropped) != 1 || result.Dropped[0] != "gone" {
		t.Errorf("Dropped = %v, want [gone]", result.Dropped)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	addProject(t, r, "alex", "chan-1", "One")
	addProject(t, r, "sam", "chan-2", "Two")
	graph := channelGraph{"chan-1": "cat-a", "chan-2": "cat-s"}

	first, err := r.ReconcileWorkspaces(context.Background(), graph.lookup, nil)
	if err != nil {
		t.Fatal(err)
	}
	snapFirst := r.Snapshot()
	second, err := r.ReconcileWorkspaces(context.Background(), graph.lookup, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !maps.Equal(first.Resolved, second.Resolved) {
		t.Errorf("mapping changed between runs: %v vs %v", first.Resolved, second.Resolved)
	}
	for u, rec := range r.Snapshot().Users {
		if rec.WorkspaceID != snapFirst.Users[u].WorkspaceID {
			t.Errorf("user %s workspace %q != %q", u, rec.WorkspaceID, snapFirst.Users[u].WorkspaceID)
		}
	}
}

func TestReconcileCancelled(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.BindWorkspace("alex", "cat-1"); err != nil {
		t.Fatal(err)
	}
	addProject(t, r, "alex", "chan-1", "One")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ReconcileWorkspaces(ctx, channelGraph{}.lookup, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if ws, _ := r.Workspace("alex"); ws != "cat-1" {
		t.Error("cancelled reconcile must not modify the table")
	}
}

func TestReconcileKeepsWorkspaceWhileProvisioning(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.BindWorkspace("user-1", "cat-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.BindWorkspace("ghost", "cat-ghost"); err != nil {
		t.Fatal(err)
	}
	addProject(t, r, "sam", "chan-2", "Two")

	graph := channelGraph{"chan-2": "cat-sam"}
	provisioning := func(u string) bool { return u == "user-1" }
	result, err := r.ReconcileWorkspaces(context.Background(), graph.lookup, provisioning)
	if err != nil {
		t.Fatal(err)
	}

	if ws, ok := r.Workspace("user-1"); !ok || ws != "cat-1" {
		t.Errorf("user-1 workspace = %q, %v; want cat-1 still bound", ws, ok)
	}
	if _, ok := r.Workspace("ghost"); ok {
		t.Error("stale binding without projects should be discarded")
	}
	if len(result.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", result.Dropped)
	}

	// The next provisioning step lands in the same workspace.
	addProject(t, r, "user-1", "chan-1", "One")
	if ws, _ := r.Workspace("user-1"); ws != "cat-1" {
		t.Errorf("workspace after AddProject = %q, want cat-1", ws)
	}
}

func TestReconcileKeepsBindingsMadeDuringLookup(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.BindWorkspace("early", "cat-early"); err != nil {
		t.Fatal(err)
	}
	addProject(t, r, "sam", "chan-2", "Two")

	graph := channelGraph{"chan-2": "cat-sam"}
	lookup := func(ctx context.Context, channelID string) (string, bool, error) {
		// Another goroutine binds a new user and gives an already bound
		// user a first project while the rebuild is in flight.
		if err := r.BindWorkspace("late", "cat-late"); err != nil {
			t.Error(err)
		}
		if _, err := r.AddProject("early", NewProject{ChannelID: "chan-early", TrackerMessageID: "msg"}); err != nil {
			t.Error(err)
		}
		return graph.lookup(ctx, channelID)
	}
	if _, err := r.ReconcileWorkspaces(context.Background(), lookup, nil); err != nil {
		t.Fatal(err)
	}

	for user, want := range map[string]string{"late": "cat-late", "early": "cat-early", "sam": "cat-sam"} {
		if ws, ok := r.Workspace(user); !ok || ws != want {
			t.Errorf("%s workspace = %q, %v; want %q", user, ws, ok, want)
		}
	}
}
