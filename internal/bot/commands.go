package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/onboard"
	"github.com/ksteinfeldt/wipbot/internal/platform"
)

// ErrNotAuthorized indicates the author lacks the admin role.
var ErrNotAuthorized = errors.New("admin role required")

// dispatch runs a prefixed message as a command and replies in the
// channel with its output or a one-line failure.
func (b *Bot) dispatch(ctx context.Context, ev platform.MessageEvent) {
	args := strings.Fields(strings.TrimPrefix(ev.Text, b.cfg.CommandPrefix))
	if len(args) == 0 {
		return
	}
	log := b.logger.With("command", args[0], "user", ev.AuthorID)

	reply, err := b.Execute(ctx, ev, args)
	if err != nil {
		log.Warn("command failed", "error", err)
		reply = "❌ " + err.Error()
	} else {
		log.Info("command ran")
	}
	if reply == "" {
		return
	}
	if _, err := b.platform.SendMessage(ctx, ev.ChannelID, reply); err != nil {
		log.Error("command reply not delivered", "error", err)
	}
}

// Execute authorizes the author and runs args against the command tree.
// It returns the text written by the command.
func (b *Bot) Execute(ctx context.Context, ev platform.MessageEvent, args []string) (string, error) {
	if err := b.authorize(ctx, ev); err != nil {
		return "", err
	}

	var out bytes.Buffer
	root := b.commandTree(ev)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func (b *Bot) authorize(ctx context.Context, ev platform.MessageEvent) error {
	roleID, ok, err := b.platform.LookupRole(ctx, b.cfg.AdminRole)
	if err != nil {
		return fmt.Errorf("checking role: %w", err)
	}
	if !ok || !slices.Contains(ev.AuthorRoles, roleID) {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, b.cfg.AdminRole)
	}
	return nil
}

// commandTree builds a fresh tree per message so concurrent commands
// never share flag state.
func (b *Bot) commandTree(ev platform.MessageEvent) *cobra.Command {
	root := &cobra.Command{
		Use:           b.cfg.CommandPrefix,
		Short:         "Writing project bot commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Reconcile workspaces and save the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := b.Save(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("💾 Saved %d users and %d projects.\n", res.Users, res.Projects)
			if len(res.Dropped) > 0 {
				cmd.Printf("Workspaces no longer found for: %s\n", mentions(res.Dropped))
			}
			return nil
		},
	})

	var addFor string
	add := &cobra.Command{
		Use:   "addproject <title>, <genre>, <current>, <goal>, <stage>",
		Short: "Add a project to an existing workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := onboard.ParseDetail(strings.Join(args, " "))
			if err != nil {
				return err
			}
			owner := ev.AuthorID
			if addFor != "" {
				owner = userRef(addFor)
			}
			p, err := b.engine.AddProject(cmd.Context(), owner, detail)
			if err != nil {
				return err
			}
			cmd.Printf("📖 Added **%s** in <#%s>.\n", p.Title, p.ChannelID)
			return nil
		},
	}
	add.Flags().StringVar(&addFor, "for", "", "Member to add the project for (defaults to you)")
	root.AddCommand(add)

	root.AddCommand(&cobra.Command{
		Use:   "testweekly",
		Short: "Send the weekly goal prompt now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("Weekly goal prompt: %s.\n", b.scheduler.RunWeekly(cmd.Context()))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "testinactive",
		Short: "Send inactivity reminders now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("Inactivity reminders: %s.\n", b.scheduler.RunInactivity(cmd.Context()))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "onboardme",
		Short: "Start onboarding for yourself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := b.engine.StartFor(cmd.Context(), ev.AuthorID, ev.AuthorName); err != nil {
				return err
			}
			cmd.Println("📬 Check your direct messages to get started.")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reprovision <member>",
		Short: "Restart onboarding for a member without projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := userRef(args[0])
			if err := b.engine.StartFor(cmd.Context(), userID, b.memberName(cmd.Context(), userID)); err != nil {
				return err
			}
			cmd.Printf("📬 Onboarding restarted for <@%s>.\n", userID)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "projects [member]",
		Short: "List a member's projects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := ev.AuthorID
			if len(args) == 1 {
				userID = userRef(args[0])
			}
			b.writeProjects(cmd, userID)
			return nil
		},
	})

	return root
}

func (b *Bot) writeProjects(cmd *cobra.Command, userID string) {
	projects := b.registry.Projects(userID)
	if len(projects) == 0 {
		cmd.Printf("<@%s> has no projects.\n", userID)
		return
	}
	cmd.Printf("Projects for <@%s>:\n", userID)
	for _, p := range projects {
		cmd.Printf("• **%s** (<#%s>): %d / %d words, %s, last update %s\n",
			p.Title, p.ChannelID, p.Current, p.Goal, p.Stage, p.LastUpdate.Format("2 Jan 2006"))
	}
	if goal, ok := b.registry.WeeklyGoal(userID); ok {
		cmd.Printf("This week's goal: %s\n", goal)
	}
}

func (b *Bot) memberName(ctx context.Context, userID string) string {
	members, err := b.platform.Members(ctx)
	if err != nil {
		return userID
	}
	for _, m := range members {
		if m.ID == userID {
			return m.Name
		}
	}
	return userID
}

// userRef accepts a raw ID or a mention (<@id> or <@!id>).
func userRef(s string) string {
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}

func mentions(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@" + id + ">"
	}
	return strings.Join(out, ", ")
}
