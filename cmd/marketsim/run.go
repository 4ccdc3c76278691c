package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/gridmarket/internal/api"
	"github.com/talgya/gridmarket/internal/config"
	"github.com/talgya/gridmarket/internal/economy"
	"github.com/talgya/gridmarket/internal/engine"
	"github.com/talgya/gridmarket/internal/persistence"
)

const progressEvery = 100 // Steps between progress log lines

// newRunCommand creates the run command
func newRunCommand(load configLoader) *cobra.Command {
	var (
		sellers, buyers int
		width, height   int
		seed            int64
		steps           int
		dbPath          string
		serve           bool
		port            int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a market simulation",
		Long: `Run a market for a fixed number of steps and print a summary.

Flags override the config file and MARKETSIM_* environment variables.
With --db the metrics are checkpointed to SQLite as the run progresses.
With --api the observation API stays up after the run until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("sellers") {
				cfg.Market.Sellers = sellers
			}
			if f.Changed("buyers") {
				cfg.Market.Buyers = buyers
			}
			if f.Changed("width") {
				cfg.Market.Width = width
			}
			if f.Changed("height") {
				cfg.Market.Height = height
			}
			if f.Changed("seed") {
				cfg.Market.Seed = seed
			}
			if f.Changed("steps") {
				cfg.Market.Steps = steps
			}
			if f.Changed("db") {
				cfg.Database.Enabled = dbPath != ""
				cfg.Database.Path = dbPath
			}
			if f.Changed("api") {
				cfg.API.Enabled = serve
			}
			if f.Changed("port") {
				cfg.API.Port = port
			}
			if err := config.ValidateConfig(cfg); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMarket(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&sellers, "sellers", 0, "Number of sellers")
	cmd.Flags().IntVar(&buyers, "buyers", 0, "Number of buyers")
	cmd.Flags().IntVar(&width, "width", 0, "Grid width")
	cmd.Flags().IntVar(&height, "height", 0, "Grid height")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed")
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to run (0 = until interrupted)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path for run metrics (empty disables)")
	cmd.Flags().BoolVar(&serve, "api", false, "Serve the observation API")
	cmd.Flags().IntVar(&port, "port", 0, "API port")

	return cmd
}

// runMarket builds a simulation from cfg and runs it to completion or until
// ctx is cancelled.
func runMarket(ctx context.Context, cfg *config.Config, out io.Writer) error {
	sim, err := engine.NewSimulation(cfg.Params())
	if err != nil {
		return err
	}

	runner := engine.NewRunner(cfg.Market.Steps)
	runner.Interval = cfg.Engine.Interval
	runner.CheckpointEvery = cfg.Engine.CheckpointEvery
	runner.OnStep = func(step int) {
		if step%progressEvery != 0 {
			return
		}
		if st, ok := sim.Metrics.Latest(); ok {
			slog.Info("progress", "step", step, "sampled_transactions", st.TotalTransactions)
		}
	}

	var (
		db  *persistence.DB
		rec *persistence.Recorder
	)
	if cfg.Database.Enabled {
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err = db.StartRun(sim.Params)
		if err != nil {
			return err
		}
		runner.OnCheckpoint = func(step int) error {
			return rec.Flush(sim.Metrics)
		}
		slog.Info("recording run", "run_id", rec.RunID, "path", cfg.Database.Path)
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = &api.Server{
			Sim:       sim,
			Runner:    runner,
			DB:        db,
			Port:      cfg.API.Port,
			AdminKey:  cfg.API.AdminKey,
			RateLimit: cfg.API.RateLimit,
			RateBurst: cfg.API.RateBurst,
		}
		if rec != nil {
			server.RunID = rec.RunID
		}
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Warn("API shutdown", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		runner.Stop()
	}()

	runErr := runner.Run(sim)
	if rec != nil {
		if runErr != nil {
			// Keep what was collected; the run stays unfinished.
			if err := rec.Flush(sim.Metrics); err != nil {
				slog.Error("final flush failed", "run_id", rec.RunID, "error", err)
			}
		} else if err := rec.Close(sim.Metrics); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}

	runID := ""
	if rec != nil {
		runID = rec.RunID
	}
	if err := printSummary(out, sim, runID); err != nil {
		return err
	}

	if server != nil && ctx.Err() == nil {
		slog.Info("run complete; API still serving, interrupt to exit", "port", cfg.API.Port)
		<-ctx.Done()
	}
	return nil
}

// printSummary writes the end-of-run report. It fails when the stock of the
// market is not conserved.
func printSummary(out io.Writer, sim *engine.Simulation, runID string) error {
	st := sim.Snapshot()
	want := st.Sellers * economy.StartingStock

	fmt.Fprintf(out, "Market finished at step %s\n", humanize.Comma(int64(st.Step)))
	if runID != "" {
		fmt.Fprintf(out, "  Run ID:            %s\n", runID)
	}
	fmt.Fprintf(out, "  Grid:              %dx%d (seed %d)\n", st.Width, st.Height, st.Seed)
	fmt.Fprintf(out, "  Sellers / buyers:  %d / %d\n", st.Sellers, st.Buyers)
	fmt.Fprintf(out, "  Transactions:      %s\n", humanize.Comma(int64(st.LiveTransactions)))
	fmt.Fprintf(out, "  Mean ask price:    %s\n", humanize.CommafWithDigits(st.MeanPrice, 2))
	fmt.Fprintf(out, "  Buyer budget left: %s\n", humanize.CommafWithDigits(st.BuyerBudget, 2))
	fmt.Fprintf(out, "  Stock:             %d with sellers, %d with buyers\n", st.SellerStock, st.BuyerHoldings)

	if st.TotalResources != want {
		fmt.Fprintf(out, "  Conservation:      VIOLATED (%d of %d)\n", st.TotalResources, want)
		return fmt.Errorf("resources not conserved: have %d, want %d", st.TotalResources, want)
	}
	fmt.Fprintf(out, "  Conservation:      ok (%d units)\n", want)
	return nil
}
