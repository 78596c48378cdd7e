package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// Event sources.
const (
	SourcePlanner = "planner"
	SourceTracker = "tracker"
)

// Event types the orchestrator recognizes as deletions; everything else
// resolves to exactly one engine invocation.
var deletionEventTypes = map[string]bool{
	"item:deleted": true, // tracker wire name
	"page.deleted": true, // planner wire name
	"deleted":      true,
}

// Event is one queued change notification.
type Event struct {
	ID         string
	Source     string // SourcePlanner or SourceTracker
	Type       string
	EntityID   string
	EnqueuedAt time.Time
}

// engineRunner is the interface the Orchestrator uses to dispatch events.
// Implemented by *Engine; mock implementations are used in tests.
type engineRunner interface {
	SyncFromPlanner(ctx context.Context, plannerID string) Outcome
	SyncFromTracker(ctx context.Context, trackerID string) Outcome
	PropagatePlannerDeletion(ctx context.Context, plannerID string) Outcome
	PropagateTrackerDeletion(ctx context.Context, trackerID string) Outcome
	RunSweep(ctx context.Context, window time.Duration) (*SweepReport, error)
}

// Stats are cumulative orchestrator counters.
type Stats struct {
	Enqueued    int64
	Processed   int64
	Created     int64
	Synced      int64
	Skipped     int64
	Deferred    int64
	Failed      int64
	DeletesGate int64 // deletion events dropped by the sync_deletions gate
	LastEventAt time.Time
}

// Status is the operator-facing liveness snapshot.
type Status struct {
	Running    bool
	QueueLen   int
	StateCount int
	Stats      Stats
}

// OrchestratorConfig holds the inputs for creating an Orchestrator.
type OrchestratorConfig struct {
	Engine        engineRunner
	Store         Store
	SyncDeletions bool
	SweepWindow   time.Duration
	Logger        *slog.Logger
}

// Orchestrator owns the unbounded FIFO event queue and drains it with a
// single consumer, so reconciliations never run concurrently — two in-flight
// syncs for the same id would race to create duplicate counterparts.
// Producers never block: Enqueue appends and returns.
type Orchestrator struct {
	engine        engineRunner
	store         Store
	syncDeletions bool
	sweepWindow   time.Duration
	logger        *slog.Logger

	mu      gosync.Mutex
	queue   []Event
	stats   Stats
	running bool

	// engineMu serializes every engine invocation. The engine is not safe
	// for concurrent use, and sweeps arrive from the daemon's ticker and the
	// CLI on goroutines other than the consumer's.
	engineMu gosync.Mutex

	// notify carries a wake-up signal to the consumer; buffered so a
	// producer never blocks even when the consumer is mid-reconciliation.
	notify chan struct{}
	done   chan struct{}
}

// NewOrchestrator creates an Orchestrator. Start must be called before
// events are consumed; Enqueue may be called at any time.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		engine:        cfg.Engine,
		store:         cfg.Store,
		syncDeletions: cfg.SyncDeletions,
		sweepWindow:   cfg.SweepWindow,
		logger:        logger,
		notify:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Enqueue appends an event to the queue and returns immediately. It is safe
// to call from any goroutine, including webhook handlers under load.
func (o *Orchestrator) Enqueue(source, eventType, entityID string) {
	ev := Event{
		ID:         uuid.NewString(),
		Source:     source,
		Type:       eventType,
		EntityID:   entityID,
		EnqueuedAt: time.Now(),
	}

	o.mu.Lock()
	o.queue = append(o.queue, ev)
	o.stats.Enqueued++
	o.mu.Unlock()

	// Non-blocking: a pending signal already guarantees a drain pass.
	select {
	case o.notify <- struct{}{}:
	default:
	}

	o.logger.Debug("event enqueued",
		slog.String("event_id", ev.ID),
		slog.String("source", source),
		slog.String("type", eventType),
		slog.String("entity_id", entityID),
	)
}

// Start launches the consumer loop. It returns immediately; the loop runs
// until ctx is canceled. The in-flight reconciliation finishes before
// shutdown completes.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	go o.run(ctx)
}

// Wait blocks until the consumer loop has exited.
func (o *Orchestrator) Wait() {
	<-o.done
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	o.logger.Info("orchestrator consumer started")

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.running = false
			pending := len(o.queue)
			o.mu.Unlock()

			o.logger.Info("orchestrator consumer stopped", slog.Int("pending", pending))

			return
		case <-o.notify:
			o.drain(ctx)
		}
	}
}

// drain processes queued events one at a time until the queue is empty or
// the context is canceled.
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return
		}

		ev := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.dispatch(ctx, ev)
	}
}

// dispatch routes one event to the engine and tallies the outcome.
func (o *Orchestrator) dispatch(ctx context.Context, ev Event) {
	o.logger.Debug("dispatching event",
		slog.String("event_id", ev.ID),
		slog.String("source", ev.Source),
		slog.String("type", ev.Type),
		slog.Duration("queued", time.Since(ev.EnqueuedAt)),
	)

	var out Outcome

	o.engineMu.Lock()
	switch {
	case deletionEventTypes[ev.Type]:
		out = o.dispatchDeletion(ctx, ev)
	case ev.Source == SourcePlanner:
		out = o.engine.SyncFromPlanner(ctx, ev.EntityID)
	default:
		out = o.engine.SyncFromTracker(ctx, ev.EntityID)
	}
	o.engineMu.Unlock()

	o.mu.Lock()
	o.stats.Processed++
	o.stats.LastEventAt = time.Now()

	switch out {
	case OutcomeCreated:
		o.stats.Created++
	case OutcomeSynced:
		o.stats.Synced++
	case OutcomeSkipped:
		o.stats.Skipped++
	case OutcomeDeferred:
		o.stats.Deferred++
	case OutcomeFailed:
		o.stats.Failed++
	}
	o.mu.Unlock()
}

// dispatchDeletion propagates a deletion, or acknowledges and drops it when
// sync_deletions is disabled — no collaborator write, no state removal.
func (o *Orchestrator) dispatchDeletion(ctx context.Context, ev Event) Outcome {
	if !o.syncDeletions {
		o.logger.Info("deletion event dropped, sync_deletions disabled",
			slog.String("source", ev.Source), slog.String("entity_id", ev.EntityID))

		o.mu.Lock()
		o.stats.DeletesGate++
		o.mu.Unlock()

		return OutcomeSkipped
	}

	if ev.Source == SourcePlanner {
		return o.engine.PropagatePlannerDeletion(ctx, ev.EntityID)
	}

	return o.engine.PropagateTrackerDeletion(ctx, ev.EntityID)
}

// RunSweep runs a full-catalog reconciliation through the engine. Exposed to
// the CLI and the serve daemon's periodic ticker. It takes the same engine
// lock as the consumer, so a sweep never overlaps a queued reconciliation.
func (o *Orchestrator) RunSweep(ctx context.Context) (*SweepReport, error) {
	o.engineMu.Lock()
	defer o.engineMu.Unlock()

	return o.engine.RunSweep(ctx, o.sweepWindow)
}

// Status reports liveness and cumulative statistics.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	st := Status{
		Running:  o.running,
		QueueLen: len(o.queue),
		Stats:    o.stats,
	}
	o.mu.Unlock()

	if o.store != nil {
		count, err := o.store.Count(ctx)
		if err != nil {
			o.logger.Warn("counting sync state failed", slog.String("error", err.Error()))
		} else {
			st.StateCount = count
		}
	}

	return st
}
