package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/doctor"
	"github.com/ksteinfeldt/wipbot/internal/style"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupConfig,
	Short:   "Check the config and saved registry",
	Long: `Run offline health checks: the config is complete, the weekly schedule
resolves, and the saved registry would restore cleanly at startup.

With --fix, an unreadable snapshot file is renamed to <path>.corrupt so the
bot starts with an empty registry instead of refusing to load.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorFix bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair what can be repaired")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := doctor.Run(&doctor.CheckContext{
		Context:    cmd.Context(),
		Config:     cfg,
		ConfigPath: configPath,
	}, doctor.Default(), doctorFix)

	for _, r := range results {
		prefix := style.SuccessPrefix
		switch r.Status {
		case doctor.StatusWarning:
			prefix = style.WarningPrefix
		case doctor.StatusError:
			prefix = style.ErrorPrefix
		}
		cmd.Printf("%s %s %s\n", prefix, style.Bold.Render(r.Name), r.Message)
		for _, d := range r.Details {
			cmd.Printf("    %s\n", style.Dim.Render(d))
		}
		if r.Status != doctor.StatusOK && r.FixHint != "" {
			cmd.Printf("    %s %s\n", style.ArrowPrefix, r.FixHint)
		}
	}

	if doctor.Worst(results) == doctor.StatusError {
		return errors.New("doctor found problems")
	}
	return nil
}
