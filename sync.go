package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/sync"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full reconciliation sweep and exit",
		Long: `Run a single full-catalog sweep.

Queries the planner for pages changed within the sweep window, reconciles
each one, and prints a summary. Use --window to override the configured
sweep window, e.g. --window 72h.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}

	cmd.Flags().String("window", "", "how far back to look for changed pages (overrides config)")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := slog.Default()

	dur := config.Duration(cfg.Sync.SweepWindow)

	if flagWindow, _ := cmd.Flags().GetString("window"); flagWindow != "" {
		parsed, err := time.ParseDuration(flagWindow)
		if err != nil {
			return fmt.Errorf("invalid sweep window %q: %w", flagWindow, err)
		}

		dur = parsed
	}

	store, err := sync.NewStore(cfg.Sync.StateDBPath, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	engine, _ := buildPipeline(cfg, store, logger)

	ctx := shutdownContext(cmd.Context(), logger)

	report, err := engine.RunSweep(ctx, dur)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if flagJSON {
		return printSweepJSON(report)
	}

	printSweepText(report)

	return nil
}

func printSweepJSON(report *sync.SweepReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

func printSweepText(report *sync.SweepReport) {
	fmt.Printf("Sweep finished in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  examined:  %d\n", report.Total)
	fmt.Printf("  created:   %d\n", report.Created)
	fmt.Printf("  synced:    %d\n", report.Synced)
	fmt.Printf("  skipped:   %d\n", report.Skipped)
	fmt.Printf("  deferred:  %d\n", report.Deferred)
	fmt.Printf("  failed:    %d\n", report.Failed)
}
