package bot

import (
	"context"
	"errors"

	"github.com/ksteinfeldt/wipbot/internal/alert"
)

// Cleanup deletes a departed member's project channels and workspace,
// then drops their registry rows. Rows are dropped even when a deletion
// fails; the joined error lists every failed step.
func (b *Bot) Cleanup(ctx context.Context, userID string) error {
	projects := b.registry.Projects(userID)
	workspaceID, hasWorkspace := b.registry.Workspace(userID)
	if len(projects) == 0 && !hasWorkspace {
		return nil
	}

	var errs []error
	for _, p := range projects {
		if err := b.platform.DeleteChannel(ctx, p.ChannelID); err != nil {
			errs = append(errs, err)
			b.alerts.Notify(alert.EventCleanupFailed, map[string]string{
				alert.FieldUser:    userID,
				alert.FieldChannel: p.ChannelID,
				alert.FieldProject: p.Title,
				alert.FieldError:   err.Error(),
			})
		}
	}
	if hasWorkspace {
		if err := b.platform.DeleteWorkspace(ctx, workspaceID); err != nil {
			errs = append(errs, err)
			b.alerts.Notify(alert.EventCleanupFailed, map[string]string{
				alert.FieldUser:      userID,
				alert.FieldWorkspace: workspaceID,
				alert.FieldError:     err.Error(),
			})
		}
	}

	b.registry.RemoveUser(userID)
	b.logger.Info("member removed", "user", userID, "projects", len(projects), "failures", len(errs))
	return errors.Join(errs...)
}
