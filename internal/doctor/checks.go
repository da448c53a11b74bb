package doctor

import (
	"errors"
	"fmt"
	"os"

	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/config"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/store"
)

// ConfigCheck verifies the config file exists and has what the bot
// needs to connect.
type ConfigCheck struct {
	BaseCheck
}

// NewConfigCheck creates a ConfigCheck.
func NewConfigCheck() *ConfigCheck {
	return &ConfigCheck{BaseCheck{
		CheckName:        "config",
		CheckDescription: "Verify the config file and bot token",
	}}
}

func (c *ConfigCheck) Run(ctx *CheckContext) *CheckResult {
	res := &CheckResult{Name: c.Name()}

	if _, err := os.Stat(ctx.ConfigPath); os.IsNotExist(err) {
		res.Details = append(res.Details, ctx.ConfigPath+" not found, using defaults")
	}

	if err := ctx.Config.Validate(); err != nil {
		res.Status = StatusError
		res.Message = err.Error()
		res.FixHint = "Run 'wipbot config init', set discord.guild_id and export " + config.TokenEnv
		return res
	}

	res.Message = "Config is complete"
	return res
}

// ScheduleCheck verifies the weekly job settings resolve.
type ScheduleCheck struct {
	BaseCheck
}

// NewScheduleCheck creates a ScheduleCheck.
func NewScheduleCheck() *ScheduleCheck {
	return &ScheduleCheck{BaseCheck{
		CheckName:        "schedule",
		CheckDescription: "Verify the weekly prompt day, time and timezone",
	}}
}

func (c *ScheduleCheck) Run(ctx *CheckContext) *CheckResult {
	sched, err := ctx.Config.Schedule.Resolve()
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: err.Error(),
			FixHint: "Use a full weekday name, 24-hour HH:MM and an IANA timezone",
		}
	}

	res := &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("Weekly prompt %s %02d:%02d %s", sched.WeeklyDay, sched.WeeklyHour, sched.WeeklyMinute, sched.Location),
	}
	if sched.StaleAfter < sched.InactivityInterval {
		res.Status = StatusWarning
		res.Details = []string{"stale_after is shorter than inactivity_interval; members may be reminded about fresh projects"}
	}
	return res
}

// StoreCheck verifies the saved registry can be restored.
type StoreCheck struct {
	BaseCheck
}

// NewStoreCheck creates a StoreCheck.
func NewStoreCheck() *StoreCheck {
	return &StoreCheck{BaseCheck{
		CheckName:        "store",
		CheckDescription: "Verify the saved registry loads cleanly",
	}}
}

func (c *StoreCheck) Run(ctx *CheckContext) *CheckResult {
	res := &CheckResult{Name: c.Name()}

	st, err := store.Open(ctx.Config.Store.Backend, ctx.Config.Store.Path)
	if err != nil {
		res.Status = StatusError
		res.Message = err.Error()
		res.FixHint = "Set store.backend to \"file\" or \"sqlite\""
		return res
	}
	defer st.Close()

	snap, err := st.Load(ctx.Context)
	switch {
	case errors.Is(err, store.ErrNotFound):
		res.Message = "No saved registry (will be created on first save)"
		return res
	case err != nil:
		res.Status = StatusError
		res.Message = err.Error()
		res.FixHint = "Run 'wipbot doctor --fix' to move the file aside"
		return res
	}

	if err := registry.New(clock.Real()).Restore(snap); err != nil {
		res.Status = StatusError
		res.Message = "Saved registry would not restore"
		res.Details = []string{err.Error()}
		res.FixHint = "Run 'wipbot doctor --fix' to move the file aside"
		return res
	}

	projects := 0
	for _, u := range snap.Users {
		projects += len(u.Projects)
	}
	res.Message = fmt.Sprintf("Registry restores: %d members, %d projects", len(snap.Users), projects)
	return res
}

// Fix moves an unreadable file snapshot aside so the bot starts clean
// and the next save writes a fresh one. SQLite databases are left alone.
func (c *StoreCheck) Fix(ctx *CheckContext) error {
	if ctx.Config.Store.Backend == store.BackendSQLite {
		return fmt.Errorf("refusing to move a sqlite database; inspect %s by hand", ctx.Config.Store.Path)
	}
	path := ctx.Config.Store.Path
	return os.Rename(path, path+".corrupt")
}
