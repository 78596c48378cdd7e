package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func ts(s string) time.Time {
	return parseTime(s)
}

func tsPtr(s string) *time.Time {
	t := parseTime(s)
	return &t
}

func TestStore_GetMissingReturnsNilNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state, err := store.GetByPlannerID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, state)

	state, err = store.GetByTrackerID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &SyncState{
		PlannerID:       "p-1",
		TrackerID:       "t-1",
		PlannerModified: tsPtr("2024-01-10T09:00:00Z"),
		LastSyncedAt:    ts("2024-01-10T09:01:00Z"),
		Direction:       DirectionPlannerToTracker,
	}
	require.NoError(t, store.Upsert(ctx, in))

	byPlanner, err := store.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, byPlanner)

	assert.Equal(t, "t-1", byPlanner.TrackerID)
	require.NotNil(t, byPlanner.PlannerModified)
	assert.True(t, byPlanner.PlannerModified.Equal(ts("2024-01-10T09:00:00Z")))
	assert.Nil(t, byPlanner.TrackerModified)
	assert.True(t, byPlanner.LastSyncedAt.Equal(ts("2024-01-10T09:01:00Z")))
	assert.Equal(t, DirectionPlannerToTracker, byPlanner.Direction)
	assert.Equal(t, 0, byPlanner.ConflictCount)
	assert.False(t, byPlanner.CreatedAt.IsZero())

	byTracker, err := store.GetByTrackerID(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, byTracker)
	assert.Equal(t, "p-1", byTracker.PlannerID)
}

func TestStore_UpsertPreservesConflictCountAndCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-01-10T09:00:00Z"),
		Direction:    DirectionPlannerToTracker,
		CreatedAt:    ts("2024-01-01T00:00:00Z"),
	}))
	require.NoError(t, store.IncrementConflict(ctx, "p-1"))

	// Second upsert with fresh timestamps must not reset the counter or the
	// creation time.
	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-01-11T09:00:00Z"),
		Direction:    DirectionTrackerToPlanner,
	}))

	state, err := store.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, 1, state.ConflictCount)
	assert.True(t, state.CreatedAt.Equal(ts("2024-01-01T00:00:00Z")))
	assert.Equal(t, DirectionTrackerToPlanner, state.Direction)
}

func TestStore_LastSyncedAtNeverDecreases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-06-01T12:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))

	// Out-of-order upsert with an older timestamp.
	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-05-01T12:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))

	state, err := store.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, state.LastSyncedAt.Equal(ts("2024-06-01T12:00:00Z")))
}

func TestStore_TouchTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:       "p-1",
		TrackerID:       "t-1",
		PlannerModified: tsPtr("2024-01-01T00:00:00Z"),
		LastSyncedAt:    ts("2024-01-01T00:00:00Z"),
		Direction:       DirectionPlannerToTracker,
	}))

	// Touch only the tracker side; nil leaves the planner side untouched.
	require.NoError(t, store.TouchTimestamps(ctx, "p-1", nil, tsPtr("2024-02-01T00:00:00Z")))

	state, err := store.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)

	require.NotNil(t, state.PlannerModified)
	assert.True(t, state.PlannerModified.Equal(ts("2024-01-01T00:00:00Z")))
	require.NotNil(t, state.TrackerModified)
	assert.True(t, state.TrackerModified.Equal(ts("2024-02-01T00:00:00Z")))

	// LastSyncedAt does not advance on touch.
	assert.True(t, state.LastSyncedAt.Equal(ts("2024-01-01T00:00:00Z")))
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-01-01T00:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))

	require.NoError(t, store.Delete(ctx, "p-1"))

	state, err := store.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Deleting a missing row is not an error.
	require.NoError(t, store.Delete(ctx, "p-1"))
}

func TestStore_ListAllAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p-b", "p-a", "p-c"} {
		require.NoError(t, store.Upsert(ctx, &SyncState{
			PlannerID:    id,
			TrackerID:    "t-" + id,
			LastSyncedAt: ts("2024-01-01T00:00:00Z"),
			Direction:    DirectionPlannerToTracker,
		}))
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Ordered by planner id.
	assert.Equal(t, "p-a", all[0].PlannerID)
	assert.Equal(t, "p-b", all[1].PlannerID)
	assert.Equal(t, "p-c", all[2].PlannerID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_ListStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID: "p-old", TrackerID: "t-old",
		LastSyncedAt: ts("2024-01-01T00:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))
	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID: "p-new", TrackerID: "t-new",
		LastSyncedAt: ts("2024-06-01T00:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))

	stale, err := store.ListStale(ctx, ts("2024-03-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "p-old", stale[0].PlannerID)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	ctx := context.Background()

	store, err := NewStore(path, testLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, &SyncState{
		PlannerID:    "p-1",
		TrackerID:    "t-1",
		LastSyncedAt: ts("2024-01-01T00:00:00Z"),
		Direction:    DirectionPlannerToTracker,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, testLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.GetByPlannerID(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "t-1", state.TrackerID)
}
