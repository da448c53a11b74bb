package onboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/platform"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/tracker"
)

var lower = cases.Lower(language.Und)

// ChannelName derives a channel name from a project title: lowercased,
// spaces replaced with hyphens, nothing else.
func ChannelName(title string) string {
	return strings.ReplaceAll(lower.String(title), " ", "-")
}

// WorkspaceName is the category name for a member's workspace.
func WorkspaceName(name string) string {
	return name + "'s Projects"
}

const welcomeText = "Welcome, <@%s>! This is your space to track writing projects.\n\n" +
	"**%s** is your workspace and each channel in it is one project. The pinned message in each channel is its tracker. " +
	"You can rename channels or add new ones with the + next to the workspace name.\n\n" +
	"Post updates in a project channel and the tracker will follow along:\n" +
	"`Current Word Count: 12345`\n" +
	"`Stage: drafting` (e.g. outlining, drafting, 2nd draft, editing, published)\n\n" +
	"If you leave the server, this workspace and its channels are deleted automatically."

// Overwrites returns the workspace permissions for ownerID: the owner
// manages their channels, the admin role (if found) administers them,
// everyone else may only read.
func Overwrites(ownerID, adminRoleID string) []platform.Overwrite {
	ow := []platform.Overwrite{
		{
			Kind:  platform.TargetEveryone,
			Allow: platform.PermViewChannel,
			Deny:  platform.PermSendMessages,
		},
		{
			Kind:  platform.TargetMember,
			ID:    ownerID,
			Allow: platform.PermViewChannel | platform.PermSendMessages | platform.PermManageChannels,
		},
	}
	if adminRoleID != "" {
		ow = append(ow, platform.Overwrite{
			Kind:  platform.TargetRole,
			ID:    adminRoleID,
			Allow: platform.PermViewChannel | platform.PermSendMessages | platform.PermManageChannels | platform.PermManageMessages,
		})
	}
	return ow
}

// provision creates the workspace and one channel per project. Channels
// created before a failure are left in place. A workspace still bound
// from an earlier attempt is reused.
func (e *Engine) provision(ctx context.Context, log *slog.Logger, userID string, s State) error {
	fail := func(step string, err error) error {
		e.alerts.Notify(alert.EventProvisionFailed, map[string]string{
			alert.FieldUser:  userID,
			alert.FieldStep:  step,
			alert.FieldError: err.Error(),
		})
		return fmt.Errorf("%s: %w", step, err)
	}

	workspaceID, ok := e.registry.Workspace(userID)
	if ok {
		log.Info("reusing workspace", "workspace", workspaceID)
	} else {
		var err error
		if workspaceID, err = e.CreateWorkspace(ctx, userID, s.Name); err != nil {
			return fail("create workspace", err)
		}
	}
	log = log.With("workspace", workspaceID)

	for i, d := range s.Details {
		p, err := e.AddProject(ctx, userID, d)
		if err != nil {
			return fail(fmt.Sprintf("project %d (%s)", i+1, d.Title), err)
		}
		log.Info("project provisioned", "channel", p.ChannelID, "title", p.Title)

		if i == 0 {
			welcome := fmt.Sprintf(welcomeText, userID, WorkspaceName(s.Name))
			if _, err := e.platform.SendMessage(ctx, p.ChannelID, welcome); err != nil {
				log.Warn("welcome message failed", "channel", p.ChannelID, "error", err)
			}
		}
	}

	return e.say(ctx, userID, fmt.Sprintf("✅ All set! **%s** is ready with %d project channel(s).", WorkspaceName(s.Name), len(s.Details)))
}

// CreateWorkspace creates and records a workspace for userID. A user who
// already has one is rejected before anything is created.
func (e *Engine) CreateWorkspace(ctx context.Context, userID, displayName string) (string, error) {
	if existing, ok := e.registry.Workspace(userID); ok {
		return "", fmt.Errorf("%w: %s", registry.ErrDuplicateWorkspace, existing)
	}

	ok, err := e.platform.CanManageChannels(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoPermission
	}

	var adminRoleID string
	if e.cfg.AdminRole != "" {
		id, found, err := e.platform.LookupRole(ctx, e.cfg.AdminRole)
		if err != nil {
			return "", err
		}
		if found {
			adminRoleID = id
		} else {
			e.logger.Warn("admin role not found, workspace will have no admin overwrite", "role", e.cfg.AdminRole)
		}
	}

	workspaceID, err := e.platform.CreateWorkspace(ctx, WorkspaceName(displayName), Overwrites(userID, adminRoleID))
	if err != nil {
		return "", err
	}
	if err := e.registry.BindWorkspace(userID, workspaceID); err != nil {
		return "", err
	}
	return workspaceID, nil
}

// AddProject creates a project channel in userID's workspace, posts and
// pins its tracker, and registers it.
func (e *Engine) AddProject(ctx context.Context, userID string, d Detail) (registry.Project, error) {
	workspaceID, ok := e.registry.Workspace(userID)
	if !ok {
		return registry.Project{}, fmt.Errorf("%w: %s", ErrNoWorkspace, userID)
	}

	channelID, err := e.platform.CreateChannel(ctx, workspaceID, ChannelName(d.Title))
	if err != nil {
		return registry.Project{}, err
	}

	text := tracker.Render(tracker.Input{
		Title:   d.Title,
		Genre:   d.Genre,
		Stage:   d.Stage,
		Current: d.Current,
		Goal:    d.Goal,
	}, e.clock.Now().UTC())

	messageID, err := e.platform.SendMessage(ctx, channelID, text)
	if err != nil {
		return registry.Project{}, err
	}
	if err := e.platform.PinMessage(ctx, channelID, messageID); err != nil {
		return registry.Project{}, err
	}

	return e.registry.AddProject(userID, registry.NewProject{
		Title:            d.Title,
		Genre:            d.Genre,
		Current:          d.Current,
		Goal:             d.Goal,
		Stage:            d.Stage,
		ChannelID:        channelID,
		TrackerMessageID: messageID,
	})
}
