package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/gridmarket/internal/engine"
	"github.com/talgya/gridmarket/internal/persistence"
)

// newRunsCommand creates the runs command
func newRunsCommand(load configLoader) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.Database.Path
			}
			db, err := openExisting(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path (default: database.path from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	return cmd
}

// newReportCommand creates the report command
func newReportCommand(load configLoader) *cobra.Command {
	var (
		dbPath string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the stored metric series of a run",
		Long: `Print the per-step transaction count and mean seller price of a
recorded run.

Examples:
  marketsim report --run 5f0c4b8e-1d2a-4c3b-9e8f-7a6b5c4d3e2f`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.Database.Path
			}
			db, err := openExisting(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := db.GetRun(runID)
			if err != nil {
				return err
			}
			txs, err := db.LoadTransactionSeries(runID)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			means, err := db.LoadMeanPriceSeries(runID)
			if err != nil {
				return fmt.Errorf("failed to load mean prices: %w", err)
			}
			return printReport(cmd.OutOrStdout(), run, txs, means)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path (default: database.path from config)")
	cmd.Flags().StringVar(&runID, "run", "", "Run ID to report (required)")
	cmd.MarkFlagRequired("run")

	return cmd
}

// openExisting opens a database that must already exist. Opening a missing
// path would silently create an empty one.
func openExisting(path string) (*persistence.DB, error) {
	if path == "" {
		return nil, errors.New("no database path configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return persistence.Open(path)
}

func printRuns(out io.Writer, runs []persistence.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTEPS\tSELLERS\tBUYERS\tFINISHED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\n",
			r.ID,
			humanize.Time(r.StartedAt),
			humanize.Comma(int64(r.Steps)),
			r.NumSellers,
			r.NumBuyers,
			r.Finished,
		)
	}
	return w.Flush()
}

// printReport lists both series side by side. The two series share their
// steps because every sample stores at least one seller price.
func printReport(out io.Writer, run persistence.Run, txs []engine.TransactionPoint, means []engine.MeanPricePoint) error {
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "  Started:  %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	fmt.Fprintf(out, "  Params:   %s\n", run.Params)
	fmt.Fprintf(out, "  Steps:    %s (finished: %t)\n\n", humanize.Comma(int64(run.Steps)), run.Finished)

	meanAt := make(map[int]float64, len(means))
	for _, m := range means {
		meanAt[m.Step] = m.Mean
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTRANSACTIONS\tMEAN PRICE")
	for _, t := range txs {
		fmt.Fprintf(w, "%d\t%s\t%.2f\n", t.Step, humanize.Comma(int64(t.Total)), meanAt[t.Step])
	}
	return w.Flush()
}
