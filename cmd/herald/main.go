// Command herald polls syndication feeds and timelines and posts newly seen
// items to webhook endpoints.
//
// Usage:
//
//	herald run -c config.toml      # poll on the configured interval
//	herald once -c config.toml     # run a single pass and exit
//	herald ledger -c config.toml   # print what the ledger currently tracks
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"herald/internal/config"
	"herald/internal/logging"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Feed and timeline notifier for webhook endpoints",
	Long: `Herald polls RSS, Atom and JSON feeds and user timelines, remembers what
it has already seen and posts new items to the webhooks configured for
each source.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files loaded before the config")
}

// loadConfig reads the dotenv files and the config, then builds the logger
// it describes.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.Bot.LogLevel, cfg.Bot.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
