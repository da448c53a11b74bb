// Package cmd implements the wipbot command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/config"
)

// Command group IDs.
const (
	GroupBot    = "bot"
	GroupConfig = "config"
)

var rootCmd = &cobra.Command{
	Use:   "wipbot",
	Short: "Writing project workspaces and progress trackers for Discord",
	Long: `wipbot onboards new members of a writing community, gives each one a
private category of project channels, and keeps a pinned progress tracker in
every channel up to date from "Current Word Count:" and "Stage:" posts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          requireSubcommand,
}

var configPath string

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupBot, Title: "Bot Commands:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration Commands:"},
	)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the TOML config file")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
