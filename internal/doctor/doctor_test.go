package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksteinfeldt/wipbot/internal/config"
)

func newContext(t *testing.T) *CheckContext {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Discord.Token = "token"
	cfg.Discord.GuildID = "guild"
	cfg.Schedule.Timezone = "UTC"
	cfg.Store.Path = filepath.Join(dir, "registry.json")
	return &CheckContext{
		Context:    context.Background(),
		Config:     cfg,
		ConfigPath: filepath.Join(dir, "wipbot.toml"),
	}
}

func TestHealthyInstall(t *testing.T) {
	ctx := newContext(t)
	results := Run(ctx, Default(), false)

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, r := range results {
		if r.Status != StatusOK {
			t.Errorf("%s: %s %s %v", r.Name, r.Status, r.Message, r.Details)
		}
	}
}

func TestConfigCheckMissingToken(t *testing.T) {
	ctx := newContext(t)
	ctx.Config.Discord.Token = ""

	res := NewConfigCheck().Run(ctx)
	if res.Status != StatusError || res.FixHint == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestScheduleCheck(t *testing.T) {
	ctx := newContext(t)
	ctx.Config.Schedule.Timezone = "Nowhere/Special"
	if res := NewScheduleCheck().Run(ctx); res.Status != StatusError {
		t.Errorf("bad timezone: %+v", res)
	}

	ctx = newContext(t)
	ctx.Config.Schedule.StaleAfter = config.Duration{Duration: time.Hour}
	if res := NewScheduleCheck().Run(ctx); res.Status != StatusWarning {
		t.Errorf("short stale_after: %+v", res)
	}
}

func TestStoreCheckFixesCorruptFile(t *testing.T) {
	ctx := newContext(t)
	if err := os.WriteFile(ctx.Config.Store.Path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if res := NewStoreCheck().Run(ctx); res.Status != StatusError {
		t.Fatalf("corrupt file should fail: %+v", res)
	}

	results := Run(ctx, []Check{NewStoreCheck()}, true)
	if results[0].Status != StatusOK {
		t.Errorf("after fix: %+v", results[0])
	}
	if _, err := os.Stat(ctx.Config.Store.Path + ".corrupt"); err != nil {
		t.Errorf("corrupt file not kept aside: %v", err)
	}
}

func TestStoreCheckUnrestorableSnapshot(t *testing.T) {
	ctx := newContext(t)
	body := `{"version":1,"users":{"u":{"projects":[{"channel_id":"c","last_update":"soon"}]}},"metadata":{}}`
	if err := os.WriteFile(ctx.Config.Store.Path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	res := NewStoreCheck().Run(ctx)
	if res.Status != StatusError || len(res.Details) == 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestWorst(t *testing.T) {
	results := []*CheckResult{{Status: StatusOK}, {Status: StatusWarning}, {Status: StatusOK}}
	if Worst(results) != StatusWarning {
		t.Error("expected warning")
	}
	if Worst(nil) != StatusOK {
		t.Error("no results is ok")
	}
}
