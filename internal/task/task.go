// Package task defines the normalized task model shared by both sides of the
// bridge: the document-database planner (side A) and the flat task tracker
// (side B). Both collaborator clients decode into these types; the mapper and
// conflict resolver operate on them exclusively.
package task

import (
	"strings"
	"time"
)

// Priority bounds on the normalized scale. The normalized scale follows the
// planner's convention: 1 is the most urgent, 4 the least.
const (
	PriorityHighest = 1
	PriorityLowest  = 4
)

// Task is the normalized representation of a logical task, rebuilt from a raw
// collaborator snapshot on every fetch. IDs are system-scoped: a Task carries
// the id of the side it was fetched from, never the counterpart's.
type Task struct {
	ID          string
	Title       string
	Description string

	// Due carries at most one of an exact timestamp, a date-only value, or a
	// free-text expression (see Due).
	Due *Due

	// Priority on the normalized 1..4 scale (1 = highest). Zero means unset.
	Priority int

	Labels   []string
	ParentID string // same-system reference
	Project  string // name or id, depending on source side

	Completed bool

	// Recurring is set when the source side manages a repeating schedule for
	// this task. Writes to the due field of a recurring task are suppressed
	// unless the incoming value is itself a recurrence expression.
	Recurring bool

	CreatedAt time.Time

	// LastModifiedAt is zero when the source system does not expose a
	// modification timestamp.
	LastModifiedAt time.Time
}

// ModifiedAt returns the best-known modification time: LastModifiedAt when the
// source exposes one, otherwise CreatedAt. A zero return means no timestamp is
// known at all.
func (t *Task) ModifiedAt() time.Time {
	if !t.LastModifiedAt.IsZero() {
		return t.LastModifiedAt
	}

	return t.CreatedAt
}

// Due is a task's due value. Exactly one of DateTime, Date, or Text is
// meaningful. The preference order when writing is DateTime > Date > Text,
// because free-text re-parsing is not idempotent across sync round trips —
// except that a Text value recognized as a recurrence expression always passes
// through verbatim.
type Due struct {
	DateTime time.Time // exact timestamp
	Date     string    // date-only, "2006-01-02"
	Text     string    // free-text or recurrence expression
}

// HasExact reports whether the due value carries an exact timestamp.
func (d *Due) HasExact() bool {
	return d != nil && !d.DateTime.IsZero()
}

// IsRecurrence reports whether the due value is a recurrence expression that
// must pass through verbatim.
func (d *Due) IsRecurrence() bool {
	return d != nil && IsRecurrenceText(d.Text)
}

// recurrenceKeywords are the markers that identify a free-text due value as a
// recurrence expression rather than a one-off date.
var recurrenceKeywords = []string{
	"every", "daily", "weekly", "monthly", "yearly",
	"each", "workday", "weekday",
}

// IsRecurrenceText reports whether s looks like a recurrence pattern
// ("every friday", "daily at 9am") rather than a specific date.
func IsRecurrenceText(s string) bool {
	if s == "" {
		return false
	}

	lower := strings.ToLower(s)
	for _, kw := range recurrenceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return false
}

// plannerToTracker is the fixed priority bijection. The planner ranks 1
// (highest) to 4 (lowest); the tracker ranks 4 (highest) to 1 (lowest).
var plannerToTracker = map[int]int{1: 4, 2: 3, 3: 2, 4: 1}

// trackerToPlanner is the inverse bijection.
var trackerToPlanner = map[int]int{4: 1, 3: 2, 2: 3, 1: 4}

// PriorityToTracker converts a normalized (planner-scale) priority to the
// tracker's scale. Values outside 1..4 map to the tracker's lowest priority
// rather than failing.
func PriorityToTracker(p int) int {
	if v, ok := plannerToTracker[p]; ok {
		return v
	}

	return 1 // tracker's lowest
}

// PriorityFromTracker converts a tracker priority to the normalized scale.
// Values outside 1..4 map to the normalized lowest priority.
func PriorityFromTracker(p int) int {
	if v, ok := trackerToPlanner[p]; ok {
		return v
	}

	return PriorityLowest
}

// NormalizeLabels returns a copy of labels with duplicates removed, preserving
// first-seen order. Label sets are order-insensitive; deduplication keeps
// diff-based update suppression stable.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))

	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}

		seen[l] = struct{}{}
		out = append(out, l)
	}

	return out
}

// LabelSetsEqual reports whether two label sets contain the same labels,
// ignoring order and duplicates.
func LabelSetsEqual(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, l := range a {
		as[l] = struct{}{}
	}

	bs := make(map[string]struct{}, len(b))
	for _, l := range b {
		bs[l] = struct{}{}
	}

	if len(as) != len(bs) {
		return false
	}

	for l := range as {
		if _, ok := bs[l]; !ok {
			return false
		}
	}

	return true
}
