package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/sync"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync-state statistics and stale pairings",
		Long: `Display the state of the local sync database.

Shows the number of tracked pairings and lists pairings that have not been
reconciled within the stale_after window — usually a sign of missed webhook
events or a counterpart deleted out-of-band.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusReport is the operator-facing snapshot printed by the status command.
type statusReport struct {
	StateDBPath string      `json:"state_db_path"`
	Pairings    int         `json:"pairings"`
	StaleAfter  string      `json:"stale_after"`
	Stale       []stalePair `json:"stale"`
}

// stalePair is one pairing that has not reconciled within the stale window.
type stalePair struct {
	PlannerID     string `json:"planner_id"`
	TrackerID     string `json:"tracker_id"`
	LastSyncedAt  string `json:"last_synced_at"`
	Direction     string `json:"direction"`
	ConflictCount int    `json:"conflict_count"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := slog.Default()

	store, err := sync.NewStore(cfg.Sync.StateDBPath, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	report, err := buildStatusReport(cmd.Context(), cfg, store)
	if err != nil {
		return err
	}

	if flagJSON {
		return printStatusJSON(report)
	}

	printStatusText(report)

	return nil
}

func buildStatusReport(ctx context.Context, cfg *config.Config, store sync.Store) (*statusReport, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting pairings: %w", err)
	}

	staleAfter := config.Duration(cfg.Sync.StaleAfter)
	cutoff := time.Now().Add(-staleAfter)

	stale, err := store.ListStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale pairings: %w", err)
	}

	report := &statusReport{
		StateDBPath: cfg.Sync.StateDBPath,
		Pairings:    count,
		StaleAfter:  cfg.Sync.StaleAfter,
		Stale:       make([]stalePair, 0, len(stale)),
	}

	for _, s := range stale {
		report.Stale = append(report.Stale, stalePair{
			PlannerID:     s.PlannerID,
			TrackerID:     s.TrackerID,
			LastSyncedAt:  s.LastSyncedAt.Format(time.RFC3339),
			Direction:     string(s.Direction),
			ConflictCount: s.ConflictCount,
		})
	}

	return report, nil
}

func printStatusJSON(report *statusReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

func printStatusText(report *statusReport) {
	fmt.Printf("State database: %s\n", report.StateDBPath)
	fmt.Printf("Tracked pairings: %d\n", report.Pairings)

	if len(report.Stale) == 0 {
		fmt.Printf("No pairings stale beyond %s.\n", report.StaleAfter)
		return
	}

	fmt.Printf("Stale pairings (not reconciled within %s):\n", report.StaleAfter)

	for _, s := range report.Stale {
		fmt.Printf("  %s <-> %s  last synced %s  direction %s  conflicts %d\n",
			s.PlannerID, s.TrackerID, s.LastSyncedAt, s.Direction, s.ConflictCount)
	}
}
