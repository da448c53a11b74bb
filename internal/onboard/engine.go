// Package onboard runs the direct-message intake conversation for new
// members and provisions their workspace when it completes.
package onboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/registry"
)

var (
	// ErrInProgress indicates the user is already mid-intake.
	ErrInProgress = errors.New("onboarding already in progress")

	// ErrAlreadyProvisioned indicates the user already has projects.
	ErrAlreadyProvisioned = errors.New("user already has projects")

	// ErrNoWorkspace indicates a project was added for a user without a workspace.
	ErrNoWorkspace = errors.New("user has no workspace")

	// ErrNoPermission indicates the bot may not manage channels.
	ErrNoPermission = errors.New("bot lacks manage-channels permission")
)

// DefaultReplyTimeout bounds the wait for each answer.
const DefaultReplyTimeout = 300 * time.Second

const inboxSize = 16

// Config tunes the engine.
type Config struct {
	// ReplyTimeout bounds the wait for each answer.
	ReplyTimeout time.Duration

	// AdminRole is the privileged role granted control of every workspace.
	AdminRole string
}

// Engine owns the in-flight intake conversations. The session map doubles
// as the onboarding lock: a user has at most one conversation.
type Engine struct {
	platform platform.Platform
	registry *registry.Registry
	clock    clock.Clock
	alerts   alert.Notifier
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	sessions map[string]chan string
	wg       sync.WaitGroup
}

// New creates an Engine.
func New(p platform.Platform, reg *registry.Registry, clk clock.Clock, alerts alert.Notifier, logger *slog.Logger, cfg Config) *Engine {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if alerts == nil {
		alerts = alert.Discard
	}
	return &Engine{
		platform: p,
		registry: reg,
		clock:    clk,
		alerts:   alerts,
		logger:   logger.With("component", "onboard"),
		cfg:      cfg,
		sessions: make(map[string]chan string),
	}
}

// Start begins an intake conversation with userID. If one is already
// running the trigger is dropped and ErrInProgress returned.
func (e *Engine) Start(ctx context.Context, userID, displayName string) error {
	e.mu.Lock()
	if _, busy := e.sessions[userID]; busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInProgress, userID)
	}
	inbox := make(chan string, inboxSize)
	e.sessions[userID] = inbox
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer e.release(userID)
		e.run(ctx, userID, displayName, inbox)
	}()
	return nil
}

// StartFor is Start for an administrator provisioning themselves or
// re-provisioning a member. It refuses users who already have projects.
func (e *Engine) StartFor(ctx context.Context, userID, displayName string) error {
	if e.registry.HasProjects(userID) {
		return fmt.Errorf("%w: %s", ErrAlreadyProvisioned, userID)
	}
	return e.Start(ctx, userID, displayName)
}

// Deliver routes a direct message to the user's conversation. Returns
// false if the user is not mid-intake.
func (e *Engine) Deliver(userID, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inbox, ok := e.sessions[userID]
	if !ok {
		return false
	}
	select {
	case inbox <- text:
	default:
		e.logger.Warn("dropping reply, inbox full", "user", userID)
	}
	return true
}

// Active reports whether userID is mid-intake.
func (e *Engine) Active(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.sessions[userID]
	return ok
}

// Wait blocks until every running conversation has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) release(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, userID)
}

func (e *Engine) run(ctx context.Context, userID, displayName string, inbox <-chan string) State {
	log := e.logger.With("user", userID, "session", uuid.NewString())
	log.Info("onboarding started", "display_name", displayName)

	state := State{}
	if err := e.say(ctx, userID, Prompt(state)); err != nil {
		log.Error("cannot reach member, abandoning onboarding", "error", err)
		return State{Phase: Cancelled}
	}

	for state.Phase < Provisioning {
		timeout := e.clock.After(e.cfg.ReplyTimeout)
		select {
		case reply := <-inbox:
			var msg string
			prev := state.Phase
			state, msg = Next(state, reply)
			if state.Phase != prev {
				log.Debug("onboarding advanced", "phase", state.Phase.String())
			}
			if err := e.say(ctx, userID, msg); err != nil {
				log.Error("cannot reach member, abandoning onboarding", "error", err)
				return State{Phase: Cancelled}
			}
		case <-timeout:
			log.Info("onboarding timed out", "phase", state.Phase.String())
			_ = e.say(ctx, userID, "⏰ I didn't hear back, so I've cancelled setup. Ask an admin to restart it whenever you're ready.")
			return State{Phase: Cancelled}
		case <-ctx.Done():
			log.Info("onboarding cancelled", "error", ctx.Err())
			return State{Phase: Cancelled}
		}
	}

	if err := e.provision(ctx, log, userID, state); err != nil {
		log.Error("provisioning failed", "error", err)
		_ = e.say(ctx, userID, "Something went wrong while setting up your workspace. An admin has been notified.")
		return State{Phase: Cancelled}
	}

	state.Phase = Done
	log.Info("onboarding complete", "projects", len(state.Details))
	return state
}

func (e *Engine) say(ctx context.Context, userID, text string) error {
	if text == "" {
		return nil
	}
	_, err := e.platform.SendDirect(ctx, userID, text)
	return err
}
