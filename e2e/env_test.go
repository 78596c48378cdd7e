// Package e2e exercises the whole bridge pipeline end to end: the production
// planner and tracker HTTP clients run against in-memory fake services, with
// a real state database between them. No external services are involved.
package e2e

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/planner"
	"github.com/taskbridge/taskbridge/internal/sync"
	"github.com/taskbridge/taskbridge/internal/tracker"
	"github.com/taskbridge/taskbridge/testutil"
)

const (
	plannerToken = "planner-test-token"
	trackerToken = "tracker-test-token"
	databaseID   = "db-tasks"
	sourceLabel  = "taskbridge"
)

type envOpts struct {
	strategy      sync.Strategy
	syncDeletions bool
	createParent  bool
}

// bridgeEnv wires fake upstream services to a real engine, store, and
// orchestrator.
type bridgeEnv struct {
	t       *testing.T
	planner *testutil.PlannerFake
	tracker *testutil.TrackerFake
	store   *sync.SQLiteStore
	engine  *sync.Engine
	orch    *sync.Orchestrator
}

func newBridgeEnv(t *testing.T, opts envOpts) *bridgeEnv {
	t.Helper()

	pf := testutil.NewPlannerFake(plannerToken, databaseID)
	t.Cleanup(pf.Close)

	tf := testutil.NewTrackerFake(trackerToken)
	t.Cleanup(tf.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := sync.NewStore(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	strategy := opts.strategy
	if strategy == "" {
		strategy = sync.StrategyPlannerWins
	}

	cfg := bridgeMapping()
	cfg.Parent.CreateParent = opts.createParent

	httpClient := &http.Client{Timeout: 10 * time.Second}

	engine := sync.NewEngine(&sync.EngineConfig{
		Planner:     planner.NewClient(pf.URL(), plannerToken, databaseID, httpClient, logger),
		Tracker:     tracker.NewClient(tf.URL(), trackerToken, httpClient, logger),
		Store:       store,
		Mapper:      sync.NewMapper(cfg, logger),
		Resolver:    sync.NewResolver(strategy),
		SourceLabel: sourceLabel,
		Logger:      logger,
	})

	orch := sync.NewOrchestrator(&sync.OrchestratorConfig{
		Engine:        engine,
		Store:         store,
		SyncDeletions: opts.syncDeletions,
		SweepWindow:   time.Hour,
		Logger:        logger,
	})

	return &bridgeEnv{
		t:       t,
		planner: pf,
		tracker: tf,
		store:   store,
		engine:  engine,
		orch:    orch,
	}
}

func bridgeMapping() config.MappingConfig {
	return config.MappingConfig{
		Fields: map[string]string{
			"Task name": "content",
			"Notes":     "description",
			"Priority":  "priority",
			"Tags":      "labels",
			"Due":       "due",
			"Project":   "project",
		},
		Completion: config.CompletionConfig{
			Property:    "Status",
			DoneValue:   "Done",
			ReopenValue: "In Progress",
		},
		Parent: config.ParentConfig{
			Property:      "Parent task",
			TitleProperty: "Task name",
		},
		Description: config.DescriptionConfig{
			Separator: "\n\n",
		},
	}
}

// addBasicPage creates a page with a title and one tag.
func (env *bridgeEnv) addBasicPage(title string) string {
	return env.planner.AddPage(map[string]any{
		"Task name": testutil.TitleValue(title),
		"Tags":      testutil.MultiSelectValue("errand"),
	})
}

// syncPage runs a planner-originated sync and requires the outcome.
func (env *bridgeEnv) syncPage(pageID string, want sync.Outcome) {
	env.t.Helper()

	out := env.engine.SyncFromPlanner(context.Background(), pageID)
	require.Equal(env.t, want, out)
}

// pairedTask returns the single tracker task plus its pairing row.
func (env *bridgeEnv) pairedTask(pageID string) (*tracker.Task, *sync.SyncState) {
	env.t.Helper()

	task := env.tracker.OnlyTask()
	state := env.state(pageID)
	require.NotNil(env.t, state)
	require.Equal(env.t, task.ID, state.TrackerID)

	return task, state
}

func (env *bridgeEnv) state(pageID string) *sync.SyncState {
	env.t.Helper()

	state, err := env.store.GetByPlannerID(context.Background(), pageID)
	require.NoError(env.t, err)

	return state
}

// settle sleeps past the next second boundary. Pairing timestamps are stored
// at second precision, so a sync must land in a later second than the edit it
// covers before edit detection is reliable.
func (env *bridgeEnv) settle() {
	time.Sleep(1100 * time.Millisecond)
}

// titleOf reads a page's title back from the fake planner.
func (env *bridgeEnv) titleOf(pageID string) string {
	return testutil.SpanText(env.planner.Property(pageID, "Task name"))
}

func signTrackerBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
