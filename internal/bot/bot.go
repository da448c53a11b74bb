// Package bot routes platform events to the onboarding engine, the update
// listener and the chat commands, and owns registry persistence.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/listener"
	"github.com/ksteinfeldt/wipbot/internal/onboard"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/schedule"
	"github.com/ksteinfeldt/wipbot/internal/store"
)

// Config holds the routing settings.
type Config struct {
	// AdminRole is the role allowed to run commands.
	AdminRole string

	// CommandPrefix starts every command message.
	CommandPrefix string
}

// Deps are the components a Bot drives.
type Deps struct {
	Platform  platform.Platform
	Registry  *registry.Registry
	Engine    *onboard.Engine
	Listener  *listener.Listener
	Scheduler *schedule.Scheduler
	Store     store.Store
	Alerts    alert.Notifier
	Logger    *slog.Logger
}

// Bot implements platform.Handler.
type Bot struct {
	platform  platform.Platform
	registry  *registry.Registry
	engine    *onboard.Engine
	listener  *listener.Listener
	scheduler *schedule.Scheduler
	store     store.Store
	alerts    alert.Notifier
	logger    *slog.Logger
	cfg       Config
}

var _ platform.Handler = (*Bot)(nil)

// New creates a Bot.
func New(d Deps, cfg Config) *Bot {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	if d.Alerts == nil {
		d.Alerts = alert.Discard
	}
	return &Bot{
		platform:  d.Platform,
		registry:  d.Registry,
		engine:    d.Engine,
		listener:  d.Listener,
		scheduler: d.Scheduler,
		store:     d.Store,
		alerts:    d.Alerts,
		logger:    d.Logger.With("component", "bot"),
		cfg:       cfg,
	}
}

// MemberJoined starts onboarding for a new human member.
func (b *Bot) MemberJoined(ctx context.Context, ev platform.MemberEvent) {
	if ev.Bot {
		return
	}
	b.alerts.Notify(alert.EventMemberJoined, map[string]string{alert.FieldUser: ev.Name})

	if err := b.engine.Start(ctx, ev.UserID, ev.Name); err != nil {
		b.logger.Info("onboarding not started", "user", ev.UserID, "error", err)
	}
}

// MemberLeft removes the member's workspace.
func (b *Bot) MemberLeft(ctx context.Context, ev platform.MemberEvent) {
	if err := b.Cleanup(ctx, ev.UserID); err != nil {
		b.logger.Error("cleanup incomplete", "user", ev.UserID, "error", err)
	}
}

// MessageReceived routes one message: direct messages feed onboarding
// or the weekly goal capture, prefixed messages are commands unless they
// are progress lines in a project channel, anything else may be a
// tracker update.
func (b *Bot) MessageReceived(ctx context.Context, ev platform.MessageEvent) {
	if ev.AuthorBot {
		return
	}

	if ev.Direct {
		if b.engine.Deliver(ev.AuthorID, ev.Text) {
			return
		}
		if b.registry.ConsumeGoalPrompt(ev.AuthorID, ev.Text) {
			b.logger.Info("weekly goal recorded", "user", ev.AuthorID)
			if _, err := b.platform.SendDirect(ctx, ev.AuthorID, goalAck); err != nil {
				b.logger.Warn("goal acknowledgement not delivered", "user", ev.AuthorID, "error", err)
			}
		}
		return
	}

	if strings.HasPrefix(ev.Text, b.cfg.CommandPrefix) && !b.isProgressUpdate(ev) {
		b.dispatch(ctx, ev)
		return
	}

	b.listener.Handle(ctx, ev.ChannelID, ev.Text)
}

// isProgressUpdate reports whether a message in a project channel carries
// a word count or stage. Such messages reach the tracker even when they
// happen to start with the command prefix.
func (b *Bot) isProgressUpdate(ev platform.MessageEvent) bool {
	if !b.registry.IsTracked(ev.ChannelID) {
		return false
	}
	u := listener.Parse(ev.Text)
	return u.Words != nil || u.Stage != nil
}

const goalAck = "🎯 Got it! Your goal for this week is noted. Good luck!"

// CheckPermissions logs loudly when the bot cannot manage channels;
// onboarding will fail until that is fixed.
func (b *Bot) CheckPermissions(ctx context.Context) bool {
	ok, err := b.platform.CanManageChannels(ctx)
	if err != nil {
		b.logger.Error("permission check failed", "error", err)
		return false
	}
	if !ok {
		b.logger.Error("bot lacks the Manage Channels permission; onboarding will fail")
	}
	return ok
}

// Run serves the scheduled jobs until ctx is cancelled, then waits for
// in-flight onboarding conversations.
func (b *Bot) Run(ctx context.Context) {
	b.CheckPermissions(ctx)
	b.scheduler.Run(ctx)
	b.engine.Wait()
}

// Load restores the registry from the store. Nothing saved yet is not an
// error. On any other failure the registry is left empty.
func (b *Bot) Load(ctx context.Context) error {
	snap, err := b.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		b.logger.Info("no saved registry, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	if err := b.registry.Restore(snap); err != nil {
		return fmt.Errorf("restoring registry: %w", err)
	}
	b.logger.Info("registry restored", "users", len(b.registry.Users()), "saved_at", snap.SavedAt)
	return nil
}

// SaveResult summarises a Save.
type SaveResult struct {
	Users    int
	Projects int
	Dropped  []string
}

// Save re-derives workspace ownership from the live channels, then
// writes a snapshot.
func (b *Bot) Save(ctx context.Context) (SaveResult, error) {
	rec, err := b.registry.ReconcileWorkspaces(ctx, b.platform.CategoryOfChannel, b.engine.Active)
	if err != nil {
		return SaveResult{}, fmt.Errorf("reconciling workspaces: %w", err)
	}
	if len(rec.Dropped) > 0 {
		b.logger.Warn("workspaces no longer resolve", "users", rec.Dropped)
	}

	snap := b.registry.Snapshot()
	if err := b.store.Save(ctx, snap); err != nil {
		b.alerts.Notify(alert.EventSaveFailed, map[string]string{alert.FieldError: err.Error()})
		return SaveResult{}, fmt.Errorf("saving registry: %w", err)
	}

	res := SaveResult{Users: len(snap.Users), Dropped: rec.Dropped}
	for _, u := range snap.Users {
		res.Projects += len(u.Projects)
	}
	b.logger.Info("registry saved", "users", res.Users, "projects", res.Projects)
	return res, nil
}
