package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/store"
	"github.com/ksteinfeldt/wipbot/internal/style"
	"github.com/ksteinfeldt/wipbot/internal/tracker"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: GroupBot,
	Short:   "Print the saved registry",
	Long: `Print the registry snapshot last saved by the bot (via !save or on
shutdown). The bot does not need to be running.

Examples:
  wipbot export              # Human-readable summary
  wipbot export --json       # Raw snapshot, as stored`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var exportJSON bool

func init() {
	exportCmd.Flags().BoolVar(&exportJSON, "json", false, "Print the raw snapshot as JSON")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Store.Path, err)
	}

	out := cmd.OutOrStdout()
	if exportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	writeSummary(out, snap)
	return nil
}

func writeSummary(w io.Writer, snap *registry.Snapshot) {
	users := make([]string, 0, len(snap.Users))
	projects := 0
	for u, rec := range snap.Users {
		users = append(users, u)
		projects += len(rec.Projects)
	}
	sort.Strings(users)

	fmt.Fprintf(w, "%s %d members, %d projects %s\n",
		style.SuccessPrefix, len(users), projects, style.Dim.Render("(saved "+snap.SavedAt+")"))

	for _, u := range users {
		rec := snap.Users[u]
		fmt.Fprintln(w, style.Heading.Render("Member "+u))
		if rec.WorkspaceID == "" {
			fmt.Fprintf(w, "  %s no workspace on record\n", style.WarningPrefix)
		} else {
			fmt.Fprintf(w, "  %s\n", style.Field("Workspace", rec.WorkspaceID))
		}
		if len(rec.Projects) == 0 {
			fmt.Fprintf(w, "  %s\n", style.Dim.Render("no projects"))
			continue
		}
		for _, p := range rec.Projects {
			meta := snap.Metadata[p.ChannelID]
			percent, _ := tracker.Percent(p.Current, p.Goal)
			fmt.Fprintf(w, "  %s %s %s %s\n", style.ArrowPrefix, style.Bold.Render(p.Title), tracker.Bar(percent), style.Progress(percent))
			fmt.Fprintf(w, "      %s\n", style.Field("Genre", meta.Genre))
			fmt.Fprintf(w, "      %s\n", style.Field("Stage", p.Stage))
			fmt.Fprintf(w, "      %s\n", style.Field("Words", fmt.Sprintf("%d / %d", p.Current, p.Goal)))
			fmt.Fprintf(w, "      %s\n", style.Field("Last update", p.LastUpdate))
			fmt.Fprintf(w, "      %s\n", style.Field("Channel", p.ChannelID))
		}
	}
}
