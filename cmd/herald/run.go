package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/loader"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll all sources on the configured interval",
	Long: `Run one pass immediately and then one pass per interval until
interrupted. A tick that fires while a pass is still running is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), false)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), true)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, onceCmd)
}

func runBot(parent context.Context, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if once {
		cfg.Bot.RunOnce = true
	}

	logger.Info("Loaded configuration", "path", configPath, "sources", len(cfg.Sources), "storage", cfg.Storage.Type)

	app, err := loader.NewLoader(cfg, logger).Initialize(ctx)
	if err != nil {
		return err
	}

	logger.Info("Starting bot", "name", app.Name(), "interval", cfg.Bot.IntervalDuration(), "run_once", cfg.Bot.RunOnce)

	runErr := app.Bot.Start(ctx)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("Received shutdown signal")
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Bot.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("Bot stopped successfully")
	return nil
}
