// Package schedule runs the two recurring broadcast jobs: the weekly goal
// prompt and the inactivity reminder.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/registry"
)

// Config controls when the jobs fire.
type Config struct {
	// WeeklyDay, WeeklyHour and WeeklyMinute are wall-clock fields in
	// Location at which the goal prompt is sent.
	WeeklyDay    time.Weekday
	WeeklyHour   int
	WeeklyMinute int
	Location     *time.Location

	// CheckInterval is how often the weekly match is polled.
	CheckInterval time.Duration

	// InactivityInterval is the period of the inactivity reminder.
	InactivityInterval time.Duration

	// StaleAfter is how long without an update makes a project stale.
	StaleAfter time.Duration
}

// DefaultConfig returns Sunday 15:00 Australia/Sydney, a one-minute poll,
// a daily reminder and a 14-day staleness threshold.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		WeeklyDay:          time.Sunday,
		WeeklyHour:         15,
		WeeklyMinute:       0,
		Location:           loc,
		CheckInterval:      time.Minute,
		InactivityInterval: 24 * time.Hour,
		StaleAfter:         14 * 24 * time.Hour,
	}
}

// Report counts the outcome of one job run.
type Report struct {
	Sent   int
	Failed int
}

func (r Report) String() string {
	return fmt.Sprintf("%d sent, %d failed", r.Sent, r.Failed)
}

const (
	weeklyPrompt = "🗓️ A new writing week starts now! What's your goal for this week? " +
		"Reply to this message and I'll note it down."

	inactivityHeader = "👀 It's been a while since these projects had an update:"
	inactivityFooter = "Post a `Current Word Count:` or `Stage:` line in the project channel when you can!"
)

// Scheduler runs the recurring jobs.
type Scheduler struct {
	directory platform.Directory
	messenger platform.Messenger
	registry  *registry.Registry
	clock     clock.Clock
	logger    *slog.Logger
	cfg       Config

	mu         sync.Mutex
	lastWeekly string
}

// New creates a Scheduler.
func New(directory platform.Directory, messenger platform.Messenger, reg *registry.Registry, clk clock.Clock, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.InactivityInterval <= 0 {
		cfg.InactivityInterval = 24 * time.Hour
	}
	return &Scheduler{
		directory: directory,
		messenger: messenger,
		registry:  reg,
		clock:     clk,
		logger:    logger.With("component", "schedule"),
		cfg:       cfg,
	}
}

// Run drives both jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.CheckInterval, func(now time.Time) { s.CheckWeekly(ctx, now) })
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.InactivityInterval, func(time.Time) { s.RunInactivity(ctx) })
	}()
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, tick func(time.Time)) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick(now)
		}
	}
}

// CheckWeekly fires the weekly prompt if now falls in the configured
// minute and it has not fired for that day yet. Reports whether it fired.
func (s *Scheduler) CheckWeekly(ctx context.Context, now time.Time) bool {
	local := now.In(s.cfg.Location)
	if local.Weekday() != s.cfg.WeeklyDay || local.Hour() != s.cfg.WeeklyHour || local.Minute() != s.cfg.WeeklyMinute {
		return false
	}

	key := local.Format("2006-01-02")
	s.mu.Lock()
	if s.lastWeekly == key {
		s.mu.Unlock()
		return false
	}
	s.lastWeekly = key
	s.mu.Unlock()

	report := s.RunWeekly(ctx)
	s.logger.Info("weekly goal prompt sent", "sent", report.Sent, "failed", report.Failed)
	return true
}

// RunWeekly sends the goal prompt to every non-bot member and marks each
// one reached as awaiting a reply.
func (s *Scheduler) RunWeekly(ctx context.Context) Report {
	members, err := s.directory.Members(ctx)
	if err != nil {
		s.logger.Error("listing members", "error", err)
		return Report{}
	}

	var report Report
	for _, m := range members {
		if m.Bot {
			continue
		}
		if _, err := s.messenger.SendDirect(ctx, m.ID, weeklyPrompt); err != nil {
			s.logger.Warn("goal prompt not delivered", "user", m.ID, "error", err)
			report.Failed++
			continue
		}
		s.registry.MarkGoalPrompt(m.ID)
		report.Sent++
	}
	return report
}

// RunInactivity sends each user with stale projects one message listing
// all of them.
func (s *Scheduler) RunInactivity(ctx context.Context) Report {
	stale := s.registry.Stale(s.cfg.StaleAfter)

	users := make([]string, 0, len(stale))
	for u := range stale {
		users = append(users, u)
	}
	sort.Strings(users)

	var report Report
	for _, u := range users {
		if _, err := s.messenger.SendDirect(ctx, u, InactivityMessage(stale[u])); err != nil {
			s.logger.Warn("inactivity reminder not delivered", "user", u, "error", err)
			report.Failed++
			continue
		}
		report.Sent++
	}
	if len(users) > 0 {
		s.logger.Info("inactivity reminders sent", "sent", report.Sent, "failed", report.Failed)
	}
	return report
}

// InactivityMessage lists stale project titles.
func InactivityMessage(titles []string) string {
	var b strings.Builder
	b.WriteString(inactivityHeader)
	b.WriteString("\n")
	for _, t := range titles {
		b.WriteString("• ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString(inactivityFooter)
	return b.String()
}
