// Command taskbridge keeps a document-database planner and a flat task
// tracker in agreement, propagating creates, updates, completions, and
// deletions in both directions.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskbridge/taskbridge/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// resolvedCfgPath is the config file path the pre-run phase settled on. The
// serve daemon watches it for mapping changes.
var resolvedCfgPath string

// httpClientTimeout bounds collaborator API requests so a hung connection
// never wedges a reconciliation.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "taskbridge",
		Short:   "Bidirectional sync between a planner database and a task tracker",
		Long: "taskbridge reconciles two independently-owned task stores: a\n" +
			"document-database planner (the system of record) and a flat task\n" +
			"tracker. Changes propagate in both directions through webhooks,\n" +
			"with a periodic sweep as fallback.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// (defaults -> file -> environment) and stores the result for subcommands.
func loadConfig() error {
	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(flagConfigPath, env)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfgPath = config.ResolvePath(flagConfigPath, env)

	resolvedCfg = cfg
	slog.SetDefault(buildLogger(&cfg.Logging))

	return nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
