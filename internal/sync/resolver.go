package sync

import (
	"fmt"
	"time"

	"github.com/taskbridge/taskbridge/internal/task"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// StrategyPlannerWins always applies the planner snapshot.
	StrategyPlannerWins Strategy = "planner_wins"
	// StrategyTrackerWins always applies the tracker snapshot.
	StrategyTrackerWins Strategy = "tracker_wins"
	// StrategyLastModifiedWins picks the side that changed most recently.
	StrategyLastModifiedWins Strategy = "last_modified_wins"
	// StrategyMerge picks a base side by field-level heuristics.
	StrategyMerge Strategy = "merge"
)

// Resolver decides which side of a conflicting pair wins. Resolve is a pure
// function of its arguments: no state, no I/O, deterministic.
type Resolver struct {
	strategy Strategy
}

// NewResolver creates a Resolver for the given strategy.
func NewResolver(strategy Strategy) *Resolver {
	return &Resolver{strategy: strategy}
}

// ChangedSinceLastSync reports whether each side changed strictly after the
// prior reconciliation. With no prior state both sides count as changed.
func ChangedSinceLastSync(plannerTask, trackerTask *task.Task, prior *SyncState) (plannerChanged, trackerChanged bool) {
	if prior == nil || prior.LastSyncedAt.IsZero() {
		return true, true
	}

	return modifiedAfter(plannerTask, prior.LastSyncedAt), modifiedAfter(trackerTask, prior.LastSyncedAt)
}

// Resolve returns whether the planner side wins, with a human-readable
// reason. plannerTask and trackerTask are the current snapshots; prior may be
// nil when no pairing record exists.
func (r *Resolver) Resolve(plannerTask, trackerTask *task.Task, prior *SyncState) (plannerWins bool, reason string) {
	switch r.strategy {
	case StrategyPlannerWins:
		return true, "strategy planner_wins"
	case StrategyTrackerWins:
		return false, "strategy tracker_wins"
	case StrategyMerge:
		return r.resolveMerge(plannerTask, trackerTask)
	default:
		return r.resolveLastModified(plannerTask, trackerTask, prior)
	}
}

// resolveLastModified implements the default policy. When a prior sync record
// exists and exactly one side changed after it, that side wins outright.
// Otherwise the side with the strictly later best-known modification time
// wins; an unknown timestamp loses to a known one; an exact tie goes to the
// planner, which is the system of record.
func (r *Resolver) resolveLastModified(plannerTask, trackerTask *task.Task, prior *SyncState) (bool, string) {
	if prior != nil && !prior.LastSyncedAt.IsZero() {
		plannerChanged, trackerChanged := ChangedSinceLastSync(plannerTask, trackerTask, prior)

		if plannerChanged && !trackerChanged {
			return true, "only planner changed since last sync"
		}

		if trackerChanged && !plannerChanged {
			return false, "only tracker changed since last sync"
		}
	}

	pt := normalizeTimestamp(plannerTask)
	tt := normalizeTimestamp(trackerTask)

	switch {
	case pt.IsZero() && tt.IsZero():
		return true, "no modification times known; planner is system of record"
	case tt.IsZero():
		return true, "tracker modification time unknown"
	case pt.IsZero():
		return false, "planner modification time unknown"
	case pt.After(tt):
		return true, fmt.Sprintf("planner modified later (%s > %s)",
			pt.Format(time.RFC3339), tt.Format(time.RFC3339))
	case tt.After(pt):
		return false, fmt.Sprintf("tracker modified later (%s > %s)",
			tt.Format(time.RFC3339), pt.Format(time.RFC3339))
	default:
		return true, "modification times equal; planner is system of record"
	}
}

// resolveMerge picks a base side by field heuristics rather than merging
// field-by-field: a completion or due mismatch favors the planner; a
// priority mismatch favors the more urgent value after normalization; the
// fallback favors the planner.
func (r *Resolver) resolveMerge(plannerTask, trackerTask *task.Task) (bool, string) {
	if plannerTask.Completed != trackerTask.Completed {
		return true, "merge: completion status differs; planner is base"
	}

	if !dueEqual(plannerTask.Due, trackerTask.Due) {
		return true, "merge: due date differs; planner is base"
	}

	if plannerTask.Priority != trackerTask.Priority && plannerTask.Priority != 0 && trackerTask.Priority != 0 {
		// Lower ordinal is more urgent on the normalized scale.
		if plannerTask.Priority < trackerTask.Priority {
			return true, "merge: planner has the more urgent priority"
		}

		return false, "merge: tracker has the more urgent priority"
	}

	return true, "merge: no deciding field; planner is base"
}

// modifiedAfter reports whether t's best-known modification time is strictly
// after the cutoff. An unknown timestamp counts as unchanged.
func modifiedAfter(t *task.Task, cutoff time.Time) bool {
	if t == nil {
		return false
	}

	mt := t.ModifiedAt()
	if mt.IsZero() {
		return false
	}

	return mt.UTC().After(cutoff.UTC())
}

// normalizeTimestamp returns the task's best-known modification time in UTC.
// A zero return means the timestamp is unknown, which is never an error.
func normalizeTimestamp(t *task.Task) time.Time {
	if t == nil {
		return time.Time{}
	}

	mt := t.ModifiedAt()
	if mt.IsZero() {
		return time.Time{}
	}

	return mt.UTC()
}

// dueEqual compares two due values on their preferred representation.
func dueEqual(a, b *task.Due) bool {
	if a == nil && b == nil {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	if a.HasExact() || b.HasExact() {
		return a.HasExact() && b.HasExact() && a.DateTime.UTC().Equal(b.DateTime.UTC())
	}

	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date
	}

	return a.Text == b.Text
}
