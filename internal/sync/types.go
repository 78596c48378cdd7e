// Package sync implements the reconciliation core of taskbridge: the durable
// sync-state store, the field mapper, the conflict resolver, the per-task
// sync engine, and the event orchestrator that serializes engine invocations.
package sync

import (
	"context"
	"time"
)

// Direction records which way the last reconciliation wrote.
type Direction string

const (
	// DirectionPlannerToTracker: the planner snapshot was applied to the tracker.
	DirectionPlannerToTracker Direction = "planner_to_tracker"
	// DirectionTrackerToPlanner: the tracker snapshot was applied to the planner.
	DirectionTrackerToPlanner Direction = "tracker_to_planner"
	// DirectionMigrated: the pairing was rediscovered from a back-reference
	// annotation rather than created by a sync.
	DirectionMigrated Direction = "migrated"
)

// SyncState is one durable row per logical task pairing, keyed by planner id.
// It is the only memory of "what has already been reconciled".
type SyncState struct {
	PlannerID string
	TrackerID string

	// PlannerModified and TrackerModified are the last modification times
	// observed on each side. Nil when the side has never reported one.
	PlannerModified *time.Time
	TrackerModified *time.Time

	// LastSyncedAt is set on every successful reconciliation and never
	// decreases.
	LastSyncedAt time.Time

	Direction     Direction
	ConflictCount int
	CreatedAt     time.Time
}

// Store is the durable sync-state interface. Implemented by SQLiteStore;
// tests use in-memory SQLite.
type Store interface {
	// GetByPlannerID returns the pairing for a planner id, or (nil, nil)
	// when none exists.
	GetByPlannerID(ctx context.Context, plannerID string) (*SyncState, error)

	// GetByTrackerID returns the pairing for a tracker id, or (nil, nil)
	// when none exists.
	GetByTrackerID(ctx context.Context, trackerID string) (*SyncState, error)

	// Upsert atomically inserts or updates a pairing. It is the sole write
	// path of a successful reconciliation. ConflictCount and CreatedAt are
	// preserved on update.
	Upsert(ctx context.Context, state *SyncState) error

	// TouchTimestamps records the latest observed modification times without
	// advancing LastSyncedAt. Used when a reconciliation is skipped after a
	// conflict loss, so the loser's change is not re-detected on the next
	// poll. Nil timestamps leave the stored value unchanged.
	TouchTimestamps(ctx context.Context, plannerID string, plannerModified, trackerModified *time.Time) error

	// IncrementConflict bumps the conflict counter for a pairing.
	IncrementConflict(ctx context.Context, plannerID string) error

	// Delete removes a pairing. Only deletion propagation calls this.
	Delete(ctx context.Context, plannerID string) error

	// ListAll returns every pairing.
	ListAll(ctx context.Context) ([]*SyncState, error)

	// ListStale returns pairings whose LastSyncedAt is before the cutoff.
	ListStale(ctx context.Context, olderThan time.Time) ([]*SyncState, error)

	// Count returns the number of pairings.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Outcome is the reduced result of one engine invocation. Per-task errors
// never propagate past the engine boundary; they become OutcomeFailed.
type Outcome string

const (
	// OutcomeCreated: a new counterpart was created and the pairing recorded.
	OutcomeCreated Outcome = "created"
	// OutcomeSynced: an existing counterpart was brought up to date.
	OutcomeSynced Outcome = "synced"
	// OutcomeSkipped: nothing to do (no-op, not-found source, or no change).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDeferred: the resolver chose the other side; only timestamps
	// were touched.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeFailed: a collaborator or validation error was caught at the
	// engine boundary.
	OutcomeFailed Outcome = "failed"
)

// SweepReport summarizes one full-catalog reconciliation sweep.
type SweepReport struct {
	Total    int
	Created  int
	Synced   int
	Skipped  int
	Deferred int
	Failed   int
	Duration time.Duration
}

// record tallies an outcome into the report.
func (r *SweepReport) record(o Outcome) {
	r.Total++

	switch o {
	case OutcomeCreated:
		r.Created++
	case OutcomeSynced:
		r.Synced++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeFailed:
		r.Failed++
	}
}
