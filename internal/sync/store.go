package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit bounds the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// SQLiteStore implements the Store interface using an embedded SQLite
// database with WAL mode. Every write is a single atomic statement keyed by
// the planner id, so a crash mid-sync never leaves a row half-written.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmts stateStatements
}

type stateStatements struct {
	getByPlanner, getByTracker, upsert, touch, incrConflict,
	deleteByPlanner, listAll, listStale, count *sql.Stmt
}

// NewStore creates a SQLiteStore, opening the database at dbPath, applying
// migrations, and preparing all repeated statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening sync state database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// on one connection; the pool would otherwise hand each connection its
	// own empty in-memory database.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	return nil
}

// --- SQL query constants ---

const (
	sqlStateColumns = `planner_id, tracker_id, planner_modified, tracker_modified,
		last_synced_at, direction, conflict_count, created_at`

	sqlGetByPlanner = `SELECT ` + sqlStateColumns +
		` FROM sync_state WHERE planner_id = ?`

	sqlGetByTracker = `SELECT ` + sqlStateColumns +
		` FROM sync_state WHERE tracker_id = ?`

	// last_synced_at is stored as fixed-width RFC 3339 UTC, so MAX() keeps
	// the monotonic non-decreasing invariant even on out-of-order upserts.
	sqlUpsertState = `INSERT INTO sync_state (` + sqlStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(planner_id) DO UPDATE SET
			tracker_id       = excluded.tracker_id,
			planner_modified = excluded.planner_modified,
			tracker_modified = excluded.tracker_modified,
			last_synced_at   = MAX(last_synced_at, excluded.last_synced_at),
			direction        = excluded.direction`

	sqlTouchTimestamps = `UPDATE sync_state SET
			planner_modified = COALESCE(?, planner_modified),
			tracker_modified = COALESCE(?, tracker_modified)
		WHERE planner_id = ?`

	sqlIncrementConflict = `UPDATE sync_state
		SET conflict_count = conflict_count + 1
		WHERE planner_id = ?`

	sqlDeleteState = `DELETE FROM sync_state WHERE planner_id = ?`

	sqlListAll = `SELECT ` + sqlStateColumns +
		` FROM sync_state ORDER BY planner_id`

	sqlListStale = `SELECT ` + sqlStateColumns +
		` FROM sync_state WHERE last_synced_at < ? ORDER BY last_synced_at`

	sqlCountState = `SELECT COUNT(*) FROM sync_state`
)

// stmtDef maps a SQL string to the prepared statement pointer it populates.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func (s *SQLiteStore) prepareStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.stmts.getByPlanner, sqlGetByPlanner, "getByPlanner"},
		{&s.stmts.getByTracker, sqlGetByTracker, "getByTracker"},
		{&s.stmts.upsert, sqlUpsertState, "upsert"},
		{&s.stmts.touch, sqlTouchTimestamps, "touchTimestamps"},
		{&s.stmts.incrConflict, sqlIncrementConflict, "incrementConflict"},
		{&s.stmts.deleteByPlanner, sqlDeleteState, "delete"},
		{&s.stmts.listAll, sqlListAll, "listAll"},
		{&s.stmts.listStale, sqlListStale, "listStale"},
		{&s.stmts.count, sqlCountState, "count"},
	}

	for i := range defs {
		stmt, err := s.db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// --- Timestamp encoding ---
// Timestamps are stored as RFC 3339 UTC strings with second precision,
// which compare correctly as text.

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// encodeTimePtr returns a driver-level NULL for nil times.
func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}

	return t, nil
}

func decodeTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}

	t, err := decodeTime(*s)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanState scans a full sync_state row.
func scanState(row interface{ Scan(...any) error }) (*SyncState, error) {
	var (
		state                              SyncState
		plannerModified, trackerModified   *string
		lastSyncedAt, direction, createdAt string
	)

	err := row.Scan(
		&state.PlannerID, &state.TrackerID,
		&plannerModified, &trackerModified,
		&lastSyncedAt, &direction, &state.ConflictCount, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if state.PlannerModified, err = decodeTimePtr(plannerModified); err != nil {
		return nil, err
	}

	if state.TrackerModified, err = decodeTimePtr(trackerModified); err != nil {
		return nil, err
	}

	if state.LastSyncedAt, err = decodeTime(lastSyncedAt); err != nil {
		return nil, err
	}

	if state.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}

	state.Direction = Direction(direction)

	return &state, nil
}

// scanStateRows iterates over sql.Rows and collects SyncStates.
func scanStateRows(rows *sql.Rows) ([]*SyncState, error) {
	var states []*SyncState

	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync state row: %w", err)
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync state rows: %w", err)
	}

	return states, nil
}

// GetByPlannerID retrieves the pairing for a planner id.
// Returns (nil, nil) if no pairing exists — callers use the nil state to
// distinguish "first sync" from "known pairing".
func (s *SQLiteStore) GetByPlannerID(ctx context.Context, plannerID string) (*SyncState, error) {
	state, err := scanState(s.stmts.getByPlanner.QueryRowContext(ctx, plannerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get sync state for planner %s: %w", plannerID, err)
	}

	return state, nil
}

// GetByTrackerID retrieves the pairing for a tracker id.
// Returns (nil, nil) if no pairing exists.
func (s *SQLiteStore) GetByTrackerID(ctx context.Context, trackerID string) (*SyncState, error) {
	state, err := scanState(s.stmts.getByTracker.QueryRowContext(ctx, trackerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get sync state for tracker %s: %w", trackerID, err)
	}

	return state, nil
}

// Upsert inserts or updates a pairing in a single atomic statement.
// ConflictCount and CreatedAt are preserved on update.
func (s *SQLiteStore) Upsert(ctx context.Context, state *SyncState) error {
	s.logger.Debug("upserting sync state",
		slog.String("planner_id", state.PlannerID),
		slog.String("tracker_id", state.TrackerID),
		slog.String("direction", string(state.Direction)),
	)

	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.stmts.upsert.ExecContext(ctx,
		state.PlannerID, state.TrackerID,
		encodeTimePtr(state.PlannerModified), encodeTimePtr(state.TrackerModified),
		encodeTime(state.LastSyncedAt), string(state.Direction),
		encodeTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("upsert sync state %s: %w", state.PlannerID, err)
	}

	return nil
}

// TouchTimestamps records observed modification times without advancing
// LastSyncedAt. Nil timestamps leave the stored value unchanged.
func (s *SQLiteStore) TouchTimestamps(ctx context.Context, plannerID string, plannerModified, trackerModified *time.Time) error {
	s.logger.Debug("touching sync state timestamps", slog.String("planner_id", plannerID))

	_, err := s.stmts.touch.ExecContext(ctx,
		encodeTimePtr(plannerModified), encodeTimePtr(trackerModified), plannerID)
	if err != nil {
		return fmt.Errorf("touch timestamps %s: %w", plannerID, err)
	}

	return nil
}

// IncrementConflict bumps the conflict counter for a pairing.
func (s *SQLiteStore) IncrementConflict(ctx context.Context, plannerID string) error {
	s.logger.Debug("incrementing conflict count", slog.String("planner_id", plannerID))

	_, err := s.stmts.incrConflict.ExecContext(ctx, plannerID)
	if err != nil {
		return fmt.Errorf("increment conflict %s: %w", plannerID, err)
	}

	return nil
}

// Delete removes a pairing.
func (s *SQLiteStore) Delete(ctx context.Context, plannerID string) error {
	s.logger.Info("deleting sync state", slog.String("planner_id", plannerID))

	_, err := s.stmts.deleteByPlanner.ExecContext(ctx, plannerID)
	if err != nil {
		return fmt.Errorf("delete sync state %s: %w", plannerID, err)
	}

	return nil
}

// ListAll returns every pairing, ordered by planner id.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*SyncState, error) {
	rows, err := s.stmts.listAll.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync state: %w", err)
	}
	defer rows.Close()

	return scanStateRows(rows)
}

// ListStale returns pairings whose LastSyncedAt is before the cutoff.
func (s *SQLiteStore) ListStale(ctx context.Context, olderThan time.Time) ([]*SyncState, error) {
	rows, err := s.stmts.listStale.QueryContext(ctx, encodeTime(olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stale sync state: %w", err)
	}
	defer rows.Close()

	return scanStateRows(rows)
}

// Count returns the number of pairings.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int

	if err := s.stmts.count.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sync state: %w", err)
	}

	return count, nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sync state database")

	stmts := []*sql.Stmt{
		s.stmts.getByPlanner, s.stmts.getByTracker, s.stmts.upsert,
		s.stmts.touch, s.stmts.incrConflict, s.stmts.deleteByPlanner,
		s.stmts.listAll, s.stmts.listStale, s.stmts.count,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
