// Package listener turns progress lines posted in project channels into
// registry updates and tracker edits.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/tracker"
)

var (
	wordCountPattern = regexp.MustCompile(`(?i)current word count:\s*([0-9][0-9,]*)`)
	stagePattern     = regexp.MustCompile(`(?im)\bstage:[ \t]*(\S.*?)[ \t]*$`)
)

// Parse extracts the optional word count and stage from a message.
func Parse(text string) registry.Update {
	var u registry.Update
	if m := wordCountPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			u.Words = &n
		}
	}
	if m := stagePattern.FindStringSubmatch(text); m != nil {
		stage := m[1]
		u.Stage = &stage
	}
	return u
}

// Result describes what Handle did with a message.
type Result int

const (
	// Untracked means the channel is not a project channel.
	Untracked Result = iota
	// Ignored means the message carried no update.
	Ignored
	// Updated means the registry changed and the tracker was refreshed.
	Updated
	// UpdatedStale means the registry changed but the tracker edit failed.
	UpdatedStale
)

// Listener applies tracker updates.
type Listener struct {
	registry  *registry.Registry
	messenger platform.Messenger
	clock     clock.Clock
	logger    *slog.Logger
}

// New creates a Listener.
func New(reg *registry.Registry, messenger platform.Messenger, clk clock.Clock, logger *slog.Logger) *Listener {
	return &Listener{
		registry:  reg,
		messenger: messenger,
		clock:     clk,
		logger:    logger.With("component", "listener"),
	}
}

// Handle processes one channel message. A failed tracker edit is logged
// and the registry update kept.
func (l *Listener) Handle(ctx context.Context, channelID, text string) Result {
	if !l.registry.IsTracked(channelID) {
		return Untracked
	}

	tracked, err := l.registry.RecordUpdate(channelID, Parse(text))
	switch {
	case errors.Is(err, registry.ErrNoChange):
		return Ignored
	case errors.Is(err, registry.ErrNotFound):
		// Owner left between the IsTracked check and the update.
		return Untracked
	case err != nil:
		l.logger.Error("recording update", "channel", channelID, "error", err)
		return Ignored
	}

	p := tracked.Project
	body := tracker.Render(tracker.Input{
		Title:   tracked.Meta.Title,
		Genre:   tracked.Meta.Genre,
		Stage:   p.Stage,
		Current: p.Current,
		Goal:    tracked.Meta.Goal,
	}, p.LastUpdate)

	if err := l.messenger.EditMessage(ctx, channelID, p.TrackerMessageID, body); err != nil {
		l.logger.Warn("tracker edit failed, update kept", "channel", channelID, "message", p.TrackerMessageID, "error", err)
		return UpdatedStale
	}

	l.logger.Info("tracker updated", "channel", channelID, "owner", tracked.Owner, "words", p.Current, "stage", p.Stage)
	return Updated
}
