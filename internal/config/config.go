// Package config loads the bot's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/schedule"
	"github.com/ksteinfeldt/wipbot/internal/store"
)

// TokenEnv overrides discord.token when set.
const TokenEnv = "WIPBOT_TOKEN"

// DefaultPath is used when --config is not given.
const DefaultPath = "wipbot.toml"

// ErrInvalid indicates a config value that cannot be used.
var ErrInvalid = errors.New("invalid config")

// Config is the full bot configuration.
type Config struct {
	Discord    DiscordConfig    `toml:"discord"`
	Store      StoreConfig      `toml:"store"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Onboarding OnboardingConfig `toml:"onboarding"`
	Log        LogConfig        `toml:"log"`
	Alert      alert.Config     `toml:"alert"`
}

// DiscordConfig holds connection and community settings.
type DiscordConfig struct {
	// Token is the bot token. Prefer the WIPBOT_TOKEN environment variable.
	Token string `toml:"token,omitempty"`

	// GuildID is the community the bot manages.
	GuildID string `toml:"guild_id"`

	// AdminRole is the privileged role name.
	AdminRole string `toml:"admin_role"`

	// CommandPrefix starts every chat command.
	CommandPrefix string `toml:"command_prefix"`
}

// StoreConfig selects where snapshots are kept.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`

	// Path is the snapshot file or database path.
	Path string `toml:"path"`

	// LoadOnStart restores the last snapshot at startup.
	LoadOnStart bool `toml:"load_on_start"`
}

// ScheduleConfig holds the recurring job settings.
type ScheduleConfig struct {
	WeeklyDay          string   `toml:"weekly_day"`
	WeeklyTime         string   `toml:"weekly_time"`
	Timezone           string   `toml:"timezone"`
	CheckInterval      Duration `toml:"check_interval"`
	InactivityInterval Duration `toml:"inactivity_interval"`
	StaleAfter         Duration `toml:"stale_after"`
}

// OnboardingConfig tunes the intake conversation.
type OnboardingConfig struct {
	ReplyTimeout Duration `toml:"reply_timeout"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`

	// Format is auto, json or text. Auto picks text on a terminal.
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			AdminRole:     "Admin",
			CommandPrefix: "!",
		},
		Store: StoreConfig{
			Backend:     store.BackendFile,
			Path:        filepath.Join("data", "registry.json"),
			LoadOnStart: true,
		},
		Schedule: ScheduleConfig{
			WeeklyDay:          "Sunday",
			WeeklyTime:         "15:00",
			Timezone:           "Australia/Sydney",
			CheckInterval:      Duration{time.Minute},
			InactivityInterval: Duration{24 * time.Hour},
			StaleAfter:         Duration{14 * 24 * time.Hour},
		},
		Onboarding: OnboardingConfig{
			ReplyTimeout: Duration{300 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Alert: alert.DefaultConfig(),
	}
}

// Load reads the config at path over the defaults. A missing file is not
// an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Discord.Token = tok
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	return f.Close()
}

// Validate checks the values the bot cannot start without.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("%w: discord token missing (set %s)", ErrInvalid, TokenEnv)
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("%w: discord.guild_id missing", ErrInvalid)
	}
	if c.Discord.CommandPrefix == "" {
		return fmt.Errorf("%w: discord.command_prefix is empty", ErrInvalid)
	}
	if _, err := c.Schedule.Resolve(); err != nil {
		return err
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// Resolve converts the schedule settings into a schedule.Config.
func (s ScheduleConfig) Resolve() (schedule.Config, error) {
	out := schedule.DefaultConfig()

	day, ok := weekdays[strings.ToLower(strings.TrimSpace(s.WeeklyDay))]
	if !ok {
		return out, fmt.Errorf("%w: schedule.weekly_day %q", ErrInvalid, s.WeeklyDay)
	}
	at, err := time.Parse("15:04", strings.TrimSpace(s.WeeklyTime))
	if err != nil {
		return out, fmt.Errorf("%w: schedule.weekly_time %q", ErrInvalid, s.WeeklyTime)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return out, fmt.Errorf("%w: schedule.timezone %q: %v", ErrInvalid, s.Timezone, err)
	}

	out.WeeklyDay = day
	out.WeeklyHour = at.Hour()
	out.WeeklyMinute = at.Minute()
	out.Location = loc
	if s.CheckInterval.Duration > 0 {
		out.CheckInterval = s.CheckInterval.Duration
	}
	if s.InactivityInterval.Duration > 0 {
		out.InactivityInterval = s.InactivityInterval.Duration
	}
	if s.StaleAfter.Duration > 0 {
		out.StaleAfter = s.StaleAfter.Duration
	}
	return out, nil
}
