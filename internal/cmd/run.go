package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksteinfeldt/wipbot/internal/alert"
	"github.com/ksteinfeldt/wipbot/internal/bot"
	"github.com/ksteinfeldt/wipbot/internal/clock"
	"github.com/ksteinfeldt/wipbot/internal/discord"
	"github.com/ksteinfeldt/wipbot/internal/listener"
	"github.com/ksteinfeldt/wipbot/internal/onboard"
	"github.com/ksteinfeldt/wipbot/internal/registry"
	"github.com/ksteinfeldt/wipbot/internal/schedule"
	"github.com/ksteinfeldt/wipbot/internal/store"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: GroupBot,
	Short:   "Connect to Discord and serve until interrupted",
	Long: `Connect to Discord and serve events until SIGINT or SIGTERM.

On startup the last saved registry is restored (see [store] in the config).
A registry that cannot be read is reported and the bot starts empty.
On shutdown the registry is reconciled and saved once more.

The bot token is read from the WIPBOT_TOKEN environment variable or
discord.token in the config file.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runNoSave bool

func init() {
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Skip the registry save on shutdown")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sched, err := cfg.Schedule.Resolve()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := discord.New(cfg.Discord.Token, cfg.Discord.GuildID, logger)
	if err != nil {
		return err
	}

	clk := clock.Real()
	alerts := alert.NewClient(cfg.Alert, logger)
	reg := registry.New(clk)
	engine := onboard.New(client, reg, clk, alerts, logger, onboard.Config{
		ReplyTimeout: cfg.Onboarding.ReplyTimeout.Duration,
		AdminRole:    cfg.Discord.AdminRole,
	})
	b := bot.New(bot.Deps{
		Platform:  client,
		Registry:  reg,
		Engine:    engine,
		Listener:  listener.New(reg, client, clk, logger),
		Scheduler: schedule.New(client, client, reg, clk, logger, sched),
		Store:     st,
		Alerts:    alerts,
		Logger:    logger,
	}, bot.Config{
		AdminRole:     cfg.Discord.AdminRole,
		CommandPrefix: cfg.Discord.CommandPrefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store.LoadOnStart {
		if err := b.Load(ctx); err != nil {
			logger.Error("REGISTRY NOT RESTORED, starting empty", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "error", err)
		}
	}

	if err := client.Open(ctx, b); err != nil {
		return fmt.Errorf("connecting to discord: %w", err)
	}
	defer client.Close()

	logger.Info("wipbot running", "guild", cfg.Discord.GuildID, "version", Version)
	b.Run(ctx)
	logger.Info("shutting down")

	if runNoSave {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := b.Save(saveCtx); err != nil {
		logger.Error("final save failed", "error", err)
	}
	return nil
}
