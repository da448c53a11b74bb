package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/listener"
	"github.com/ksteinfeldt/wipbot/internal/onboard"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/platform/platformtest"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/schedule"
	"github.com/ksteinfeldt/wipbot/internal/store"
)

var start = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type recordingAlerts struct {
	mu     sync.Mutex
	events []alert.EventType
}

func (r *recordingAlerts) Notify(event alert.EventType, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAlerts) list() []alert.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.EventType(nil), r.events...)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*registry.Snapshot, error) { return nil, store.ErrNotFound }
func (failingStore) Save(context.Context, *registry.Snapshot) error   { return errors.New("disk full") }
func (failingStore) Close() error                                     { return nil }

type harness struct {
	bot    *Bot
	fake   *platformtest.Fake
	reg    *registry.Registry
	engine *onboard.Engine
	clk    *clock.FakeClock
	alerts *recordingAlerts
	path   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	return newHarnessWith(store.NewFileStore(path), path)
}

func newHarnessWith(st store.Store, path string) *harness {
	clk := clock.Fake(start)
	fake := platformtest.New()
	reg := registry.New(clk)
	alerts := &recordingAlerts{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := onboard.New(fake, reg, clk, alerts, logger, onboard.Config{AdminRole: "Admin"})
	b := New(Deps{
		Platform:  fake,
		Registry:  reg,
		Engine:    engine,
		Listener:  listener.New(reg, fake, clk, logger),
		Scheduler: schedule.New(fake, fake, reg, clk, logger, schedule.DefaultConfig()),
		Store:     st,
		Alerts:    alerts,
		Logger:    logger,
	}, Config{AdminRole: "Admin", CommandPrefix: "!"})

	return &harness{bot: b, fake: fake, reg: reg, engine: engine, clk: clk, alerts: alerts, path: path}
}

// seed provisions user-1 with one project and returns it.
func (h *harness) seed(t *testing.T) registry.Project {
	t.Helper()
	ctx := context.Background()
	if _, err := h.engine.CreateWorkspace(ctx, "user-1", "Sam"); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	p, err := h.engine.AddProject(ctx, "user-1", onboard.Detail{
		Title: "Book", Genre: "Sci-fi", Current: 10, Goal: 100, Stage: "drafting",
	})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	return p
}

// command sends text as the admin in #general and returns the replies.
func (h *harness) command(text string) []string {
	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID:   "general",
		AuthorID:    "admin-1",
		AuthorName:  "Admin",
		AuthorRoles: []string{"role-admin"},
		Text:        text,
	})
	return h.fake.MessagesIn("general")
}

func lastOf(t *testing.T, msgs []string) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatal("no reply")
	}
	return msgs[len(msgs)-1]
}

func TestMemberJoinedOnboardsByDirectMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.bot.MemberJoined(ctx, platform.MemberEvent{UserID: "user-1", Name: "sam"})
	if !h.engine.Active("user-1") {
		t.Fatal("onboarding should start on join")
	}

	for _, reply := range []string{"Sam", "1", "Book, Sci-fi, 10, 100, drafting"} {
		h.bot.MessageReceived(ctx, platform.MessageEvent{AuthorID: "user-1", Direct: true, Text: reply})
	}
	h.engine.Wait()

	if !h.reg.HasProjects("user-1") {
		t.Error("project not provisioned")
	}
	if got := h.alerts.list(); len(got) != 1 || got[0] != alert.EventMemberJoined {
		t.Errorf("alerts = %v, want one member_joined", got)
	}
}

func TestBotMembersAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.bot.MemberJoined(context.Background(), platform.MemberEvent{UserID: "bot-1", Bot: true})
	if h.engine.Active("bot-1") {
		t.Error("bots must not be onboarded")
	}
	if len(h.alerts.list()) != 0 {
		t.Error("bots must not raise alerts")
	}
}

func TestWeeklyGoalCapture(t *testing.T) {
	h := newHarness(t)
	h.reg.MarkGoalPrompt("user-1")

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{AuthorID: "user-1", Direct: true, Text: "Finish chapter 3"})

	goal, ok := h.reg.WeeklyGoal("user-1")
	if !ok || goal != "Finish chapter 3" {
		t.Errorf("WeeklyGoal = %q, %v", goal, ok)
	}
	if dms := h.fake.DirectsTo("user-1"); len(dms) != 1 || !strings.Contains(dms[0], "Got it") {
		t.Errorf("expected acknowledgement, got %v", dms)
	}

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{AuthorID: "user-1", Direct: true, Text: "hello again"})
	if dms := h.fake.DirectsTo("user-1"); len(dms) != 1 {
		t.Errorf("second reply should not be captured, got %v", dms)
	}
}

func TestUpdateMessageRefreshesTracker(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID: p.ChannelID,
		AuthorID:  "user-1",
		Text:      "Good day!\nCurrent Word Count: 40",
	})

	tracked, err := h.reg.Lookup(p.ChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if tracked.Project.Current != 40 {
		t.Errorf("Current = %d, want 40", tracked.Project.Current)
	}
	msg, _ := h.fake.Message(p.TrackerMessageID)
	if !strings.Contains(msg.Text, "40 / 100") {
		t.Errorf("tracker not refreshed:\n%s", msg.Text)
	}
}

func TestBotMessagesAreIgnored(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID: p.ChannelID,
		AuthorBot: true,
		Text:      "Current Word Count: 99",
	})
	tracked, _ := h.reg.Lookup(p.ChannelID)
	if tracked.Project.Current != 10 {
		t.Error("bot messages must not update trackers")
	}
}

func TestCommandRequiresAdminRole(t *testing.T) {
	h := newHarness(t)

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID: "general",
		AuthorID:  "user-2",
		Text:      "!save",
	})

	reply := lastOf(t, h.fake.MessagesIn("general"))
	if !strings.Contains(reply, "admin role required") {
		t.Errorf("reply = %q", reply)
	}
	if h.fake.CallCount("CategoryOfChannel") != 0 {
		t.Error("unauthorized save must not run")
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	reply := lastOf(t, h.command("!frobnicate"))
	if !strings.HasPrefix(reply, "❌") || !strings.Contains(reply, "unknown command") {
		t.Errorf("reply = %q", reply)
	}
}

func TestSaveThenLoad(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	reply := lastOf(t, h.command("!save"))
	if !strings.Contains(reply, "Saved 1 users and 1 projects") {
		t.Errorf("reply = %q", reply)
	}

	restored := newHarnessWith(store.NewFileStore(h.path), h.path)
	if err := restored.bot.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	projects := restored.reg.Projects("user-1")
	if len(projects) != 1 || projects[0].ChannelID != p.ChannelID || projects[0].Current != 10 {
		t.Errorf("projects = %+v", projects)
	}
	if !projects[0].LastUpdate.Equal(start) {
		t.Errorf("LastUpdate = %v, want %v", projects[0].LastUpdate, start)
	}
	if ws, ok := restored.reg.Workspace("user-1"); !ok || ws != "cat-1" {
		t.Errorf("workspace = %q, %v", ws, ok)
	}
}

func TestSaveDropsUnresolvedWorkspaces(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)
	delete(h.fake.Channels, p.ChannelID)

	reply := lastOf(t, h.command("!save"))
	if !strings.Contains(reply, "<@user-1>") {
		t.Errorf("expected dropped user in reply, got %q", reply)
	}
	if _, ok := h.reg.Workspace("user-1"); ok {
		t.Error("workspace should be dropped by reconciliation")
	}
}

func TestSaveKeepsWorkspaceOfMemberBeingOnboarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t)

	h.bot.MemberJoined(ctx, platform.MemberEvent{UserID: "user-2", Name: "alex"})
	for _, reply := range []string{"Alex", "1"} {
		h.bot.MessageReceived(ctx, platform.MessageEvent{AuthorID: "user-2", Direct: true, Text: reply})
	}
	workspaceID, err := h.engine.CreateWorkspace(ctx, "user-2", "Alex")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	lastOf(t, h.command("!save"))
	if ws, ok := h.reg.Workspace("user-2"); !ok || ws != workspaceID {
		t.Fatalf("workspace = %q, %v; want %q kept while onboarding", ws, ok, workspaceID)
	}

	h.bot.MessageReceived(ctx, platform.MessageEvent{AuthorID: "user-2", Direct: true, Text: "Saga, Fantasy, 100, 90000, outlining"})
	h.engine.Wait()

	if !h.reg.HasProjects("user-2") {
		t.Fatal("provisioning should finish after the save")
	}
	if ws, _ := h.reg.Workspace("user-2"); ws != workspaceID {
		t.Errorf("workspace = %q, want %q", ws, workspaceID)
	}
	dms := h.fake.DirectsTo("user-2")
	if !strings.Contains(dms[len(dms)-1], "All set") {
		t.Errorf("last DM = %q", dms[len(dms)-1])
	}
}

func TestPrefixedProgressLineUpdatesTracker(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID: p.ChannelID,
		AuthorID:  "user-1",
		Text:      "!Current Word Count: 50",
	})

	tracked, err := h.reg.Lookup(p.ChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if tracked.Project.Current != 50 {
		t.Errorf("Current = %d, want 50", tracked.Project.Current)
	}
	for _, msg := range h.fake.MessagesIn(p.ChannelID) {
		if strings.Contains(msg, "❌") {
			t.Errorf("progress line answered as a command: %q", msg)
		}
	}
}

func TestCommandInProjectChannelStillDispatched(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	h.bot.MessageReceived(context.Background(), platform.MessageEvent{
		ChannelID: p.ChannelID,
		AuthorID:  "user-1",
		Text:      "!save",
	})

	reply := lastOf(t, h.fake.MessagesIn(p.ChannelID))
	if !strings.Contains(reply, "admin role required") {
		t.Errorf("reply = %q", reply)
	}
}

func TestSaveFailureAlerts(t *testing.T) {
	h := newHarnessWith(failingStore{}, "")
	h.seed(t)

	reply := lastOf(t, h.command("!save"))
	if !strings.Contains(reply, "disk full") {
		t.Errorf("reply = %q", reply)
	}
	if got := h.alerts.list(); len(got) != 1 || got[0] != alert.EventSaveFailed {
		t.Errorf("alerts = %v", got)
	}
}

func TestLoadNothingSaved(t *testing.T) {
	h := newHarness(t)
	if err := h.bot.Load(context.Background()); err != nil {
		t.Errorf("Load with no file: %v", err)
	}
}

func TestLoadCorruptKeepsEmptyRegistry(t *testing.T) {
	h := newHarness(t)
	body := `{"version":1,"users":{"user-1":{"workspace_id":"cat-1","projects":[
		{"channel_id":"chan-1","title":"ok","last_update":"2026-10-01T00:00:00Z"},
		{"channel_id":"chan-2","title":"bad","last_update":"last tuesday"}]}},"metadata":{}}`
	if err := os.WriteFile(h.path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	err := h.bot.Load(context.Background())
	if !errors.Is(err, registry.ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got: %v", err)
	}
	if len(h.reg.Users()) != 0 {
		t.Error("nothing should be imported from a corrupt snapshot")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := h.bot.Load(context.Background()); !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got: %v", err)
	}
}

func TestAddProjectCommand(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	reply := lastOf(t, h.command("!addproject --for <@user-1> Second Book, Mystery, 0, 60000, planning"))
	if !strings.Contains(reply, "Second Book") {
		t.Errorf("reply = %q", reply)
	}
	projects := h.reg.Projects("user-1")
	if len(projects) != 2 || projects[1].Title != "Second Book" || projects[1].Goal != 60000 {
		t.Errorf("projects = %+v", projects)
	}
}

func TestAddProjectCommandWithoutWorkspace(t *testing.T) {
	h := newHarness(t)
	reply := lastOf(t, h.command("!addproject Book, Sci-fi, 0, 100, drafting"))
	if !strings.Contains(reply, "no workspace") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAddProjectCommandBadDetail(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	reply := lastOf(t, h.command("!addproject --for user-1 Book, Sci-fi"))
	if !strings.HasPrefix(reply, "❌") {
		t.Errorf("reply = %q", reply)
	}
}

func TestTestWeeklyCommand(t *testing.T) {
	h := newHarness(t)
	h.fake.MemberSet = []platform.Member{{ID: "user-1"}, {ID: "user-2"}, {ID: "bot-1", Bot: true}}
	h.fake.FailFor["user-2"] = true

	reply := lastOf(t, h.command("!testweekly"))
	if !strings.Contains(reply, "1 sent, 1 failed") {
		t.Errorf("reply = %q", reply)
	}
	if !h.reg.GoalPending("user-1") || h.reg.GoalPending("user-2") {
		t.Error("only delivered prompts should be marked")
	}
}

func TestTestInactiveCommand(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	h.clk.Advance(15 * 24 * time.Hour)

	reply := lastOf(t, h.command("!testinactive"))
	if !strings.Contains(reply, "1 sent, 0 failed") {
		t.Errorf("reply = %q", reply)
	}
	dms := h.fake.DirectsTo("user-1")
	if len(dms) == 0 || !strings.Contains(dms[len(dms)-1], "Book") {
		t.Errorf("reminder = %v", dms)
	}
}

func TestOnboardMeCommand(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	h.bot.MessageReceived(ctx, platform.MessageEvent{
		ChannelID:   "general",
		AuthorID:    "admin-1",
		AuthorName:  "Admin",
		AuthorRoles: []string{"role-admin"},
		Text:        "!onboardme",
	})
	if !h.engine.Active("admin-1") {
		t.Error("onboarding should start for the admin")
	}
	cancel()
	h.engine.Wait()
}

func TestReprovisionRefusesProvisionedMember(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	reply := lastOf(t, h.command("!reprovision <@!user-1>"))
	if !strings.Contains(reply, "already has projects") {
		t.Errorf("reply = %q", reply)
	}
}

func TestProjectsCommand(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	reply := lastOf(t, h.command("!projects user-1"))
	if !strings.Contains(reply, "**Book**") || !strings.Contains(reply, "<#"+p.ChannelID+">") || !strings.Contains(reply, "10 / 100") {
		t.Errorf("reply = %q", reply)
	}

	reply = lastOf(t, h.command("!projects"))
	if !strings.Contains(reply, "no projects") {
		t.Errorf("reply = %q", reply)
	}
}

func TestMemberLeftCleansUp(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)

	h.bot.MemberLeft(context.Background(), platform.MemberEvent{UserID: "user-1"})

	if _, ok := h.fake.Channels[p.ChannelID]; ok {
		t.Error("project channel not deleted")
	}
	if len(h.fake.Workspaces) != 0 {
		t.Error("workspace not deleted")
	}
	if h.reg.IsTracked(p.ChannelID) || h.reg.HasProjects("user-1") {
		t.Error("registry rows not removed")
	}
}

func TestCleanupPartialFailure(t *testing.T) {
	h := newHarness(t)
	p := h.seed(t)
	h.fake.SetFail("DeleteChannel", true)

	err := h.bot.Cleanup(context.Background(), "user-1")
	if !errors.Is(err, platformtest.ErrInjected) {
		t.Errorf("expected injected failure, got: %v", err)
	}
	if h.reg.IsTracked(p.ChannelID) {
		t.Error("registry rows must be dropped even when deletion fails")
	}
	if len(h.fake.Workspaces) != 0 {
		t.Error("workspace deletion should still be attempted")
	}
	if got := h.alerts.list(); len(got) != 1 || got[0] != alert.EventCleanupFailed {
		t.Errorf("alerts = %v", got)
	}
}

func TestCleanupUnknownMember(t *testing.T) {
	h := newHarness(t)
	if err := h.bot.Cleanup(context.Background(), "nobody"); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
	if h.fake.CallCount("DeleteWorkspace") != 0 {
		t.Error("nothing to delete")
	}
}

func TestCheckPermissions(t *testing.T) {
	h := newHarness(t)
	if !h.bot.CheckPermissions(context.Background()) {
		t.Error("expected permission")
	}
	h.fake.NoManage = true
	if h.bot.CheckPermissions(context.Background()) {
		t.Error("expected missing permission")
	}
}
