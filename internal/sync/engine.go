package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskbridge/taskbridge/internal/planner"
	"github.com/taskbridge/taskbridge/internal/rest"
	"github.com/taskbridge/taskbridge/internal/task"
	"github.com/taskbridge/taskbridge/internal/tracker"
)

// backRefPrefix marks the durable back-reference annotation written on every
// tracker task the bridge creates. It is also how pairings lost from the
// state database are rediscovered.
const backRefPrefix = "Planner ID: "

// minChildrenForParent is the number of incomplete children a planner parent
// needs before the sweep creates a tracker counterpart for the parent itself.
const minChildrenForParent = 2

// PlannerAPI is the planner collaborator surface the engine consumes.
// Implemented by *planner.Client; tests use fakes.
type PlannerAPI interface {
	GetPage(ctx context.Context, pageID string) (*planner.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties map[string]any) (*planner.Page, error)
	ArchivePage(ctx context.Context, pageID string) error
	QueryChangedSince(ctx context.Context, since time.Time) ([]planner.Page, error)
}

// TrackerAPI is the tracker collaborator surface the engine consumes.
// Implemented by *tracker.Client; tests use fakes.
type TrackerAPI interface {
	GetTask(ctx context.Context, taskID string) (*tracker.Task, error)
	CreateTask(ctx context.Context, fields *tracker.Fields) (*tracker.Task, error)
	UpdateTask(ctx context.Context, taskID string, fields *tracker.Fields) (*tracker.Task, error)
	MoveTask(ctx context.Context, taskID, projectID, parentID string) error
	CompleteTask(ctx context.Context, taskID string) error
	ReopenTask(ctx context.Context, taskID string) error
	DeleteTask(ctx context.Context, taskID string) error
	AddComment(ctx context.Context, taskID, content string) error
	ListComments(ctx context.Context, taskID string) ([]tracker.Comment, error)
	ListProjects(ctx context.Context) ([]tracker.Project, error)
	EnsureLabel(ctx context.Context, name string) (*tracker.Label, error)
}

// EngineConfig holds the inputs for creating an Engine.
type EngineConfig struct {
	Planner     PlannerAPI
	Tracker     TrackerAPI
	Store       Store
	Mapper      *Mapper
	Resolver    *Resolver
	SourceLabel string
	Logger      *slog.Logger
}

// Engine reconciles one logical task per invocation: fetch both snapshots,
// consult the state store, resolve conflicts, compute the minimal write, and
// record the pairing. All collaborator errors are caught at the public entry
// points and reduced to OutcomeFailed; the state row is only written on the
// success path. Not safe for concurrent use — the orchestrator serializes
// invocations by design.
type Engine struct {
	planner  PlannerAPI
	tracker  TrackerAPI
	store    Store
	resolver *Resolver

	// mapper is swappable at runtime: the serve daemon replaces it when the
	// mapping configuration changes on disk.
	mapper atomic.Pointer[Mapper]

	sourceLabel   string
	labelVerified bool

	// projects caches the tracker's project catalog, keyed by lowercased
	// name. Loaded lazily on the first named-project reference.
	projects map[string]string

	logger *slog.Logger
}

// NewEngine creates a sync engine.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		planner:     cfg.Planner,
		tracker:     cfg.Tracker,
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		sourceLabel: cfg.SourceLabel,
		logger:      logger,
	}
	e.mapper.Store(cfg.Mapper)

	return e
}

// SetMapper replaces the field mapper. Safe to call while reconciliations
// are running; each mapper access observes the latest value.
func (e *Engine) SetMapper(m *Mapper) {
	e.mapper.Store(m)
}

func (e *Engine) fieldMapper() *Mapper {
	return e.mapper.Load()
}

// SyncFromPlanner reconciles a planner-originated change. Errors never
// propagate: they are logged with the id and reduced to OutcomeFailed.
func (e *Engine) SyncFromPlanner(ctx context.Context, plannerID string) Outcome {
	out, err := e.syncFromPlanner(ctx, plannerID)
	if err != nil {
		e.logger.Error("sync from planner failed",
			slog.String("planner_id", plannerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	return out
}

// SyncFromTracker reconciles a tracker-originated change. Errors never
// propagate: they are logged with the id and reduced to OutcomeFailed.
func (e *Engine) SyncFromTracker(ctx context.Context, trackerID string) Outcome {
	out, err := e.syncFromTracker(ctx, trackerID)
	if err != nil {
		e.logger.Error("sync from tracker failed",
			slog.String("tracker_id", trackerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	return out
}

func (e *Engine) syncFromPlanner(ctx context.Context, plannerID string) (Outcome, error) {
	// The page fetch and the state lookup are independent; run them in
	// parallel.
	var (
		page  *planner.Page
		state *SyncState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.planner.GetPage(gctx, plannerID)
		if err != nil {
			return err
		}

		page = p

		return nil
	})
	g.Go(func() error {
		s, err := e.store.GetByPlannerID(gctx, plannerID)
		if err != nil {
			return err
		}

		state = s

		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			e.logger.Debug("planner page gone, skipping", slog.String("planner_id", plannerID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	if page.Archived {
		e.logger.Debug("planner page archived, skipping", slog.String("planner_id", plannerID))
		return OutcomeSkipped, nil
	}

	if state == nil {
		return e.createTrackerCounterpart(ctx, page)
	}

	cur, err := e.tracker.GetTask(ctx, state.TrackerID)
	if err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			// Stale pairing: the counterpart vanished without a deletion
			// event. Recoverable, never fatal; the row stays for deletion
			// propagation to clean up.
			e.logger.Warn("tracker counterpart missing",
				slog.String("planner_id", plannerID), slog.String("tracker_id", state.TrackerID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	plannerTask := e.fieldMapper().NormalizePage(page)
	trackerTask := NormalizeTrackerTask(cur)

	plannerChanged, trackerChanged := ChangedSinceLastSync(plannerTask, trackerTask, state)

	if !plannerChanged && !trackerChanged {
		e.logger.Debug("no changes since last sync", slog.String("planner_id", plannerID))
		return OutcomeSkipped, nil
	}

	if !plannerChanged {
		// The tracker side changed; its own event (or the sweep) owns that
		// write. Pushing the stale planner snapshot here would revert it.
		e.logger.Debug("planner unchanged, deferring to tracker side",
			slog.String("planner_id", plannerID))
		return OutcomeSkipped, nil
	}

	if trackerChanged {
		plannerWins, reason := e.resolver.Resolve(plannerTask, trackerTask, state)

		e.logger.Info("conflict detected",
			slog.String("planner_id", plannerID),
			slog.Bool("planner_wins", plannerWins),
			slog.String("reason", reason),
		)

		if err := e.store.IncrementConflict(ctx, plannerID); err != nil {
			return OutcomeFailed, err
		}

		if !plannerWins {
			// Record the loser's timestamp so the next poll does not
			// re-detect this same change.
			if err := e.store.TouchTimestamps(ctx, plannerID, &page.LastEditedTime, nil); err != nil {
				return OutcomeFailed, err
			}

			return OutcomeDeferred, nil
		}
	}

	return e.updateTrackerCounterpart(ctx, page, state, cur)
}

// createTrackerCounterpart handles the no-pairing case: create the tracker
// task, annotate it with the back-reference, and record the new pairing.
func (e *Engine) createTrackerCounterpart(ctx context.Context, page *planner.Page) (Outcome, error) {
	// A completed source with no counterpart means "finished before the
	// bridge saw it" — never re-create it.
	if e.fieldMapper().IsCompleted(page) {
		e.logger.Debug("completed page with no counterpart, skipping",
			slog.String("planner_id", page.ID))
		return OutcomeSkipped, nil
	}

	write, err := e.fieldMapper().ToTrackerFields(page)
	if err != nil {
		if errors.Is(err, ErrMissingTitle) {
			e.logger.Warn("page has no title, skipping create", slog.String("planner_id", page.ID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	if projectID := e.resolveProject(ctx, write.ProjectName); projectID != "" {
		write.Fields.ProjectID = tracker.String(projectID)
	}

	if parentID := e.resolveParent(ctx, write.ParentPlannerID); parentID != "" {
		write.Fields.ParentID = tracker.String(parentID)
	}

	if err := e.ensureSourceLabel(ctx); err != nil {
		return OutcomeFailed, err
	}

	write.Fields.Labels = task.NormalizeLabels(append(write.Fields.Labels, e.sourceLabel))

	created, err := e.tracker.CreateTask(ctx, &write.Fields)
	if err != nil {
		return OutcomeFailed, err
	}

	// The back-reference makes the pairing recoverable if the state
	// database is ever lost. A failed annotation is not worth undoing the
	// create over.
	if err := e.tracker.AddComment(ctx, created.ID, backRefPrefix+page.ID); err != nil {
		e.logger.Warn("failed to annotate created task",
			slog.String("tracker_id", created.ID), slog.String("error", err.Error()))
	}

	err = e.store.Upsert(ctx, &SyncState{
		PlannerID:       page.ID,
		TrackerID:       created.ID,
		PlannerModified: &page.LastEditedTime,
		LastSyncedAt:    time.Now(),
		Direction:       DirectionPlannerToTracker,
	})
	if err != nil {
		return OutcomeFailed, err
	}

	e.logger.Info("created tracker counterpart",
		slog.String("planner_id", page.ID), slog.String("tracker_id", created.ID))

	return OutcomeCreated, nil
}

// updateTrackerCounterpart applies the planner snapshot to an existing
// tracker task: a completion transition exclusively, or the minimal field
// diff plus a separate move when the project or parent changed.
func (e *Engine) updateTrackerCounterpart(ctx context.Context, page *planner.Page, state *SyncState, cur *tracker.Task) (Outcome, error) {
	completed := e.fieldMapper().IsCompleted(page)

	// Completion transitions are exclusive: no field update rides along,
	// because the tracker rejects simultaneous changes during a transition.
	switch {
	case completed && !cur.Completed:
		if err := e.tracker.CompleteTask(ctx, cur.ID); err != nil {
			return OutcomeFailed, err
		}

		e.logger.Info("completed tracker task", slog.String("tracker_id", cur.ID))

		return OutcomeSynced, e.recordSync(ctx, page, state, DirectionPlannerToTracker)

	case !completed && cur.Completed:
		if err := e.tracker.ReopenTask(ctx, cur.ID); err != nil {
			return OutcomeFailed, err
		}

		e.logger.Info("reopened tracker task", slog.String("tracker_id", cur.ID))

		return OutcomeSynced, e.recordSync(ctx, page, state, DirectionPlannerToTracker)

	case completed && cur.Completed:
		// Both done; nothing to reconcile beyond the fetches.
		return OutcomeSkipped, e.recordSync(ctx, page, state, DirectionPlannerToTracker)
	}

	write, err := e.fieldMapper().ToTrackerFields(page)
	if err != nil {
		if errors.Is(err, ErrMissingTitle) {
			e.logger.Warn("page has no title, skipping update", slog.String("planner_id", page.ID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	write.Fields.Labels = task.NormalizeLabels(append(write.Fields.Labels, e.sourceLabel))

	fields := diffTrackerFields(&write.Fields, cur)

	if SuppressRecurringDue(fields, cur) {
		e.logger.Debug("suppressed due write to recurring task", slog.String("tracker_id", cur.ID))
	}

	moved, err := e.moveIfNeeded(ctx, write, cur)
	if err != nil {
		return OutcomeFailed, err
	}

	if fields.IsZero() && !moved {
		e.logger.Debug("tracker counterpart already up to date", slog.String("tracker_id", cur.ID))

		// The page changed but nothing mapped differs. Record the sync anyway
		// so the pair drops out of the changed set; otherwise every sweep
		// re-detects the same edit.
		return OutcomeSkipped, e.recordSync(ctx, page, state, DirectionPlannerToTracker)
	}

	if !fields.IsZero() {
		if _, err := e.tracker.UpdateTask(ctx, cur.ID, fields); err != nil {
			return OutcomeFailed, err
		}
	}

	e.logger.Info("updated tracker counterpart",
		slog.String("planner_id", page.ID), slog.String("tracker_id", cur.ID),
		slog.Bool("moved", moved))

	return OutcomeSynced, e.recordSync(ctx, page, state, DirectionPlannerToTracker)
}

// moveIfNeeded applies project or parent changes through the tracker's move
// operation, which is distinct from a field update by API contract.
func (e *Engine) moveIfNeeded(ctx context.Context, write *TrackerWrite, cur *tracker.Task) (bool, error) {
	var projectID, parentID string

	if id := e.resolveProject(ctx, write.ProjectName); id != "" && id != cur.ProjectID {
		projectID = id
	}

	if id := e.resolveParent(ctx, write.ParentPlannerID); id != "" && id != cur.ParentID {
		parentID = id
	}

	if projectID == "" && parentID == "" {
		return false, nil
	}

	if err := e.tracker.MoveTask(ctx, cur.ID, projectID, parentID); err != nil {
		return false, err
	}

	return true, nil
}

// recordSync upserts the pairing with the freshest known timestamps. This is
// the only state write on the success path.
func (e *Engine) recordSync(ctx context.Context, page *planner.Page, state *SyncState, direction Direction) error {
	next := &SyncState{
		PlannerID:       page.ID,
		TrackerID:       state.TrackerID,
		PlannerModified: &page.LastEditedTime,
		TrackerModified: state.TrackerModified,
		LastSyncedAt:    time.Now(),
		Direction:       direction,
		CreatedAt:       state.CreatedAt,
	}

	return e.store.Upsert(ctx, next)
}

func (e *Engine) syncFromTracker(ctx context.Context, trackerID string) (Outcome, error) {
	var (
		cur   *tracker.Task
		state *SyncState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := e.tracker.GetTask(gctx, trackerID)
		if err != nil {
			return err
		}

		cur = t

		return nil
	})
	g.Go(func() error {
		s, err := e.store.GetByTrackerID(gctx, trackerID)
		if err != nil {
			return err
		}

		state = s

		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			e.logger.Debug("tracker task gone, skipping", slog.String("tracker_id", trackerID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	direction := DirectionTrackerToPlanner

	if state == nil {
		// No pairing on record: rediscover it from the back-reference
		// annotation. Tracker-originated tasks without one are not bridged.
		plannerID, err := e.discoverBackReference(ctx, trackerID)
		if err != nil {
			return OutcomeFailed, err
		}

		if plannerID == "" {
			e.logger.Debug("tracker task has no back-reference, skipping",
				slog.String("tracker_id", trackerID))
			return OutcomeSkipped, nil
		}

		e.logger.Info("recovered pairing from back-reference",
			slog.String("tracker_id", trackerID), slog.String("planner_id", plannerID))

		state = &SyncState{PlannerID: plannerID, TrackerID: trackerID}
		direction = DirectionMigrated
	}

	page, err := e.planner.GetPage(ctx, state.PlannerID)
	if err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			e.logger.Warn("planner counterpart missing",
				slog.String("tracker_id", trackerID), slog.String("planner_id", state.PlannerID))
			return OutcomeSkipped, nil
		}

		return OutcomeFailed, err
	}

	plannerTask := e.fieldMapper().NormalizePage(page)
	trackerTask := NormalizeTrackerTask(cur)

	// The tracker exposes no modification timestamp, but the event that got
	// us here is itself evidence of a tracker-side change.
	plannerChanged, _ := ChangedSinceLastSync(plannerTask, trackerTask, state)

	if plannerChanged && !state.LastSyncedAt.IsZero() {
		plannerWins, reason := e.resolver.Resolve(plannerTask, trackerTask, state)

		e.logger.Info("conflict detected",
			slog.String("planner_id", state.PlannerID),
			slog.Bool("planner_wins", plannerWins),
			slog.String("reason", reason),
		)

		if err := e.store.IncrementConflict(ctx, state.PlannerID); err != nil {
			return OutcomeFailed, err
		}

		if plannerWins {
			// The losing tracker side exposes no modification timestamp, so
			// there is nothing to record before deferring.
			return OutcomeDeferred, nil
		}
	}

	return e.updatePlannerCounterpart(ctx, page, state, cur, direction)
}

// updatePlannerCounterpart applies the tracker snapshot to the planner page:
// a completion transition exclusively, or the minimal property diff.
func (e *Engine) updatePlannerCounterpart(ctx context.Context, page *planner.Page, state *SyncState, cur *tracker.Task, direction Direction) (Outcome, error) {
	pageCompleted := e.fieldMapper().IsCompleted(page)

	if cur.Completed != pageCompleted {
		props := e.fieldMapper().CompletionTransition(cur.Completed)
		if props == nil {
			e.logger.Debug("no status value configured for transition, skipping",
				slog.String("planner_id", page.ID), slog.Bool("completed", cur.Completed))
			return OutcomeSkipped, nil
		}

		updated, err := e.planner.UpdatePage(ctx, page.ID, props)
		if err != nil {
			return OutcomeFailed, err
		}

		e.logger.Info("applied completion transition to planner",
			slog.String("planner_id", page.ID), slog.Bool("completed", cur.Completed))

		return OutcomeSynced, e.recordTrackerSync(ctx, updated, state, direction)
	}

	// The source-marker label is bridge bookkeeping, never planner content.
	stripped := *cur
	stripped.Labels = withoutLabel(cur.Labels, e.sourceLabel)

	props := e.fieldMapper().PlannerProperties(&stripped, page)
	if len(props) == 0 {
		e.logger.Debug("planner counterpart already up to date", slog.String("planner_id", page.ID))

		if direction == DirectionMigrated {
			// Persist the recovered pairing even when no write is needed.
			return OutcomeSynced, e.recordTrackerSync(ctx, page, state, direction)
		}

		return OutcomeSkipped, nil
	}

	updated, err := e.planner.UpdatePage(ctx, page.ID, props)
	if err != nil {
		return OutcomeFailed, err
	}

	e.logger.Info("updated planner counterpart",
		slog.String("planner_id", page.ID), slog.Int("properties", len(props)))

	return OutcomeSynced, e.recordTrackerSync(ctx, updated, state, direction)
}

// recordTrackerSync upserts the pairing after a tracker-to-planner write.
func (e *Engine) recordTrackerSync(ctx context.Context, page *planner.Page, state *SyncState, direction Direction) error {
	return e.store.Upsert(ctx, &SyncState{
		PlannerID:       page.ID,
		TrackerID:       state.TrackerID,
		PlannerModified: &page.LastEditedTime,
		TrackerModified: state.TrackerModified,
		LastSyncedAt:    time.Now(),
		Direction:       direction,
		CreatedAt:       state.CreatedAt,
	})
}

// PropagatePlannerDeletion deletes the tracker counterpart of a deleted
// planner page and removes the pairing. The orchestrator gates this behind
// the sync_deletions flag.
func (e *Engine) PropagatePlannerDeletion(ctx context.Context, plannerID string) Outcome {
	state, err := e.store.GetByPlannerID(ctx, plannerID)
	if err != nil {
		e.logger.Error("deletion lookup failed",
			slog.String("planner_id", plannerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	if state == nil {
		return OutcomeSkipped
	}

	if err := e.tracker.DeleteTask(ctx, state.TrackerID); err != nil && !errors.Is(err, rest.ErrNotFound) {
		e.logger.Error("deleting tracker counterpart failed",
			slog.String("tracker_id", state.TrackerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	if err := e.store.Delete(ctx, plannerID); err != nil {
		e.logger.Error("removing sync state failed",
			slog.String("planner_id", plannerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	e.logger.Info("propagated planner deletion",
		slog.String("planner_id", plannerID), slog.String("tracker_id", state.TrackerID))

	return OutcomeSynced
}

// PropagateTrackerDeletion archives the planner counterpart of a deleted
// tracker task and removes the pairing. Gated by sync_deletions in the
// orchestrator.
func (e *Engine) PropagateTrackerDeletion(ctx context.Context, trackerID string) Outcome {
	state, err := e.store.GetByTrackerID(ctx, trackerID)
	if err != nil {
		e.logger.Error("deletion lookup failed",
			slog.String("tracker_id", trackerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	if state == nil {
		return OutcomeSkipped
	}

	if err := e.planner.ArchivePage(ctx, state.PlannerID); err != nil && !errors.Is(err, rest.ErrNotFound) {
		e.logger.Error("archiving planner counterpart failed",
			slog.String("planner_id", state.PlannerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	if err := e.store.Delete(ctx, state.PlannerID); err != nil {
		e.logger.Error("removing sync state failed",
			slog.String("planner_id", state.PlannerID), slog.String("error", err.Error()))
		return OutcomeFailed
	}

	e.logger.Info("propagated tracker deletion",
		slog.String("tracker_id", trackerID), slog.String("planner_id", state.PlannerID))

	return OutcomeSynced
}

// RunSweep reconciles every planner page edited within the window. It is the
// polling fallback for missed webhooks. Parents referenced by more than one
// incomplete child are reconciled first so child parent-references resolve.
func (e *Engine) RunSweep(ctx context.Context, window time.Duration) (*SweepReport, error) {
	start := time.Now()
	since := start.Add(-window)

	pages, err := e.planner.QueryChangedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("sweep: listing changed pages: %w", err)
	}

	report := &SweepReport{}

	for _, parentID := range e.parentsNeedingCounterparts(ctx, pages) {
		report.record(e.SyncFromPlanner(ctx, parentID))
	}

	for i := range pages {
		report.record(e.SyncFromPlanner(ctx, pages[i].ID))
	}

	report.Duration = time.Since(start)

	e.logger.Info("sweep complete",
		slog.Int("total", report.Total),
		slog.Int("created", report.Created),
		slog.Int("synced", report.Synced),
		slog.Int("skipped", report.Skipped),
		slog.Int("deferred", report.Deferred),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// parentsNeedingCounterparts scans the changed pages for parent relations
// referenced by at least minChildrenForParent incomplete children, and
// returns the parent ids that have no pairing yet.
func (e *Engine) parentsNeedingCounterparts(ctx context.Context, pages []planner.Page) []string {
	parentProp := e.fieldMapper().Parent().Property
	if parentProp == "" || !e.fieldMapper().Parent().CreateParent {
		return nil
	}

	childCount := make(map[string]int)

	for i := range pages {
		if e.fieldMapper().IsCompleted(&pages[i]) {
			continue
		}

		if v, ok := pages[i].Property(parentProp); ok && len(v.Relation) > 0 {
			childCount[v.Relation[0]]++
		}
	}

	var parents []string

	for parentID, count := range childCount {
		if count < minChildrenForParent {
			continue
		}

		state, err := e.store.GetByPlannerID(ctx, parentID)
		if err != nil {
			e.logger.Warn("parent lookup failed", slog.String("planner_id", parentID))
			continue
		}

		if state == nil {
			parents = append(parents, parentID)
		}
	}

	return parents
}

// resolveProject maps a planner-side project name to a tracker project id.
// Unresolvable references are dropped with a warning, never fatal.
func (e *Engine) resolveProject(ctx context.Context, name string) string {
	if name == "" {
		return ""
	}

	if e.projects == nil {
		projects, err := e.tracker.ListProjects(ctx)
		if err != nil {
			e.logger.Warn("loading project catalog failed, dropping project reference",
				slog.String("project", name), slog.String("error", err.Error()))
			return ""
		}

		e.projects = make(map[string]string, len(projects))
		for i := range projects {
			e.projects[strings.ToLower(projects[i].Name)] = projects[i].ID
		}
	}

	id, ok := e.projects[strings.ToLower(name)]
	if !ok {
		e.logger.Warn("unresolved project reference, dropping", slog.String("project", name))
		return ""
	}

	return id
}

// resolveParent maps a planner parent page id to its tracker counterpart.
// Parents without a pairing are dropped; the sweep's parent pass creates
// them eventually.
func (e *Engine) resolveParent(ctx context.Context, parentPlannerID string) string {
	if parentPlannerID == "" {
		return ""
	}

	state, err := e.store.GetByPlannerID(ctx, parentPlannerID)
	if err != nil || state == nil {
		e.logger.Debug("parent has no tracker counterpart yet, dropping reference",
			slog.String("parent_planner_id", parentPlannerID))
		return ""
	}

	return state.TrackerID
}

// ensureSourceLabel creates the source-marker label once per engine lifetime.
func (e *Engine) ensureSourceLabel(ctx context.Context) error {
	if e.labelVerified || e.sourceLabel == "" {
		return nil
	}

	if _, err := e.tracker.EnsureLabel(ctx, e.sourceLabel); err != nil {
		return fmt.Errorf("ensuring source label %q: %w", e.sourceLabel, err)
	}

	e.labelVerified = true

	return nil
}

// discoverBackReference scans a task's comments for the back-reference
// annotation and returns the planner id it names, or "".
func (e *Engine) discoverBackReference(ctx context.Context, trackerID string) (string, error) {
	comments, err := e.tracker.ListComments(ctx, trackerID)
	if err != nil {
		return "", fmt.Errorf("listing annotations for %s: %w", trackerID, err)
	}

	for i := range comments {
		if id, ok := strings.CutPrefix(comments[i].Content, backRefPrefix); ok {
			return strings.TrimSpace(id), nil
		}
	}

	return "", nil
}

// diffTrackerFields returns only the fields whose desired value differs from
// the task's current value. Project and parent are excluded; they move
// through moveIfNeeded.
func diffTrackerFields(want *tracker.Fields, cur *tracker.Task) *tracker.Fields {
	diff := &tracker.Fields{}

	if want.Content != nil && *want.Content != cur.Content {
		diff.Content = want.Content
	}

	if want.Description != nil && *want.Description != cur.Description {
		diff.Description = want.Description
	}

	if want.Priority != nil && *want.Priority != cur.Priority {
		diff.Priority = want.Priority
	}

	if want.Labels != nil && !task.LabelSetsEqual(want.Labels, cur.Labels) {
		diff.Labels = want.Labels
	}

	if !dueWriteEqual(want, cur.Due) {
		diff.DueDate = want.DueDate
		diff.DueDatetime = want.DueDatetime
		diff.DueString = want.DueString
	}

	return diff
}

// dueWriteEqual reports whether the pending due write matches the task's
// current due value.
func dueWriteEqual(want *tracker.Fields, cur *tracker.Due) bool {
	if want.DueDate == nil && want.DueDatetime == nil && want.DueString == nil {
		return true
	}

	if cur == nil {
		return false
	}

	switch {
	case want.DueDatetime != nil:
		return *want.DueDatetime == cur.Datetime
	case want.DueDate != nil:
		return *want.DueDate == cur.Date
	default:
		return *want.DueString == cur.String
	}
}

// withoutLabel returns labels minus the given label.
func withoutLabel(labels []string, label string) []string {
	out := make([]string, 0, len(labels))

	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}

	return out
}
