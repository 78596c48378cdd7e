package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/planner"
	"github.com/taskbridge/taskbridge/internal/sync"
	"github.com/taskbridge/taskbridge/internal/tracker"
	"github.com/taskbridge/taskbridge/internal/webhook"
)

// configReloadDebounce coalesces the burst of filesystem events most editors
// emit on save into a single reload.
const configReloadDebounce = 500 * time.Millisecond

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		Long: `Run taskbridge as a long-lived daemon.

Receives webhook events from both sides, reconciles them through the
single-consumer queue, and runs a periodic full sweep as a fallback for
missed events. Edits to the mapping section of the config file are picked
up without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := slog.Default()

	store, err := sync.NewStore(cfg.Sync.StateDBPath, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	engine, orch := buildPipeline(cfg, store, logger)

	ctx := shutdownContext(cmd.Context(), logger)
	orch.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Webhook.Enabled {
		srv := webhook.NewServer(cfg.Webhook.ListenAddr, orch,
			cfg.Webhook.TrackerSecret, cfg.Webhook.PlannerSecret, logger)

		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		return watchConfig(gctx, resolvedCfgPath, engine, logger)
	})

	if interval := config.Duration(cfg.Sync.SweepInterval); interval > 0 {
		g.Go(func() error {
			runPeriodicSweep(gctx, orch, interval, logger)
			return nil
		})
	}

	// Initial sweep catches anything that changed while the daemon was down.
	if report, sweepErr := orch.RunSweep(ctx); sweepErr != nil {
		logger.Warn("startup sweep failed", slog.String("error", sweepErr.Error()))
	} else {
		logSweepReport(logger, report)
	}

	err = g.Wait()

	// Let the consumer finish the in-flight reconciliation.
	orch.Wait()

	if err != nil && !isContextCanceled(err) {
		return err
	}

	return nil
}

// buildPipeline wires the API clients, mapper, resolver, engine, and
// orchestrator from the resolved config.
func buildPipeline(cfg *config.Config, store sync.Store, logger *slog.Logger) (*sync.Engine, *sync.Orchestrator) {
	httpClient := defaultHTTPClient()

	plannerClient := planner.NewClient(
		cfg.Planner.BaseURL, cfg.Planner.Token, cfg.Planner.DatabaseID, httpClient, logger)
	trackerClient := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Token, httpClient, logger)

	engine := sync.NewEngine(&sync.EngineConfig{
		Planner:     plannerClient,
		Tracker:     trackerClient,
		Store:       store,
		Mapper:      sync.NewMapper(cfg.Mapping, logger),
		Resolver:    sync.NewResolver(sync.Strategy(cfg.Sync.ConflictStrategy)),
		SourceLabel: cfg.Sync.SourceLabel,
		Logger:      logger,
	})

	orch := sync.NewOrchestrator(&sync.OrchestratorConfig{
		Engine:        engine,
		Store:         store,
		SyncDeletions: cfg.Sync.SyncDeletions,
		SweepWindow:   config.Duration(cfg.Sync.SweepWindow),
		Logger:        logger,
	})

	return engine, orch
}

// watchConfig watches the config file and hot-swaps the engine's field
// mapper when the mapping section changes. Other sections require a restart;
// a reload that fails validation keeps the running mapper.
func watchConfig(ctx context.Context, cfgPath string, engine *sync.Engine, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch registered on the old inode.
	dir := filepath.Dir(cfgPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}

	base := filepath.Base(cfgPath)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != base {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.AfterFunc(configReloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))

		case <-reload:
			reloadMapping(cfgPath, engine, logger)
		}
	}
}

// reloadMapping re-reads the config file and installs a fresh mapper.
func reloadMapping(cfgPath string, engine *sync.Engine, logger *slog.Logger) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		logger.Warn("config reload failed, keeping current mapping",
			slog.String("path", cfgPath), slog.String("error", err.Error()))

		return
	}

	engine.SetMapper(sync.NewMapper(cfg.Mapping, logger))
	logger.Info("mapping configuration reloaded", slog.String("path", cfgPath))
}

// runPeriodicSweep runs the full sweep on a fixed interval until ctx is
// canceled.
func runPeriodicSweep(ctx context.Context, orch *sync.Orchestrator, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := orch.RunSweep(ctx)
			if err != nil {
				logger.Warn("periodic sweep failed", slog.String("error", err.Error()))
				continue
			}

			logSweepReport(logger, report)
		}
	}
}

func logSweepReport(logger *slog.Logger, report *sync.SweepReport) {
	logger.Info("sweep finished",
		slog.Int("total", report.Total),
		slog.Int("created", report.Created),
		slog.Int("synced", report.Synced),
		slog.Int("skipped", report.Skipped),
		slog.Int("deferred", report.Deferred),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)
}

func isContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
