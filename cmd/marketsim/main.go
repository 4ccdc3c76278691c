// Command marketsim runs the grid market simulation.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talgya/gridmarket/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand creates the root command. Each call builds a fresh command
// tree so tests can execute it more than once.
func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "marketsim",
		Short: "Grid market simulation of sellers and buyers",
		Long: `marketsim runs a seeded agent-based market on a toroidal grid.
Sellers hold stock at an asking price, buyers wander with a budget and buy
from the cheapest co-located seller. Prices rise after a sale and fall when
a seller is left idle.

Examples:
  marketsim run --steps 100 --seed 42
  marketsim run --db data/marketsim.db --api
  marketsim runs --db data/marketsim.db
  marketsim report --run <run-id> --db data/marketsim.db`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: marketsim.yaml in . or ./configs)")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(newLogger(os.Stderr, cfg.Logging))
		return cfg, nil
	}

	rootCmd.AddCommand(newRunCommand(load))
	rootCmd.AddCommand(newRunsCommand(load))
	rootCmd.AddCommand(newReportCommand(load))

	return rootCmd
}

// configLoader loads and validates configuration and installs the logger.
type configLoader func() (*config.Config, error)

// newLogger builds the process logger from the logging section.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
