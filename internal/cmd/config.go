package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/config"
	"github.com/ksteinfeldt/wipbot/internal/style"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupConfig,
	Short:   "Manage the wipbot config file",
	RunE:    requireSubcommand,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write the default configuration to --config (wipbot.toml by default).

Fill in discord.guild_id afterwards and export WIPBOT_TOKEN before
running the bot. An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the bot would run with: defaults, overlaid with
the config file, overlaid with WIPBOT_TOKEN. The token is redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	if err := config.Save(configPath, config.Default()); err != nil {
		return err
	}
	cmd.Printf("%s Wrote %s\n", style.SuccessPrefix, configPath)
	cmd.Printf("  %s set discord.guild_id, then export %s\n", style.ArrowPrefix, config.TokenEnv)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token != "" {
		cfg.Discord.Token = "<redacted>"
	}
	return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
}
