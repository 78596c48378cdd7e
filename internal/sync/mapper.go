package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/planner"
	"github.com/taskbridge/taskbridge/internal/task"
	"github.com/taskbridge/taskbridge/internal/tracker"
)

// ErrMissingTitle is returned when a create/update payload would have no
// content line. The tracker rejects tasks without one, so the engine skips
// these with a warning instead of calling out.
var ErrMissingTitle = errors.New("sync: task has no title")

// Tracker field names accepted as mapping targets.
const (
	targetContent     = "content"
	targetDescription = "description"
	targetPriority    = "priority"
	targetProject     = "project"
	targetLabels      = "labels"
	targetDue         = "due"
)

// Mapper translates between the planner's typed page properties and the
// tracker's flat field set. It is driven by the declarative mapping table
// from config and owns all per-kind extraction semantics. No state, no I/O.
type Mapper struct {
	fields     map[string]string
	completion config.CompletionConfig
	parent     config.ParentConfig
	desc       config.DescriptionConfig
	dates      *when.Parser
	logger     *slog.Logger
}

// NewMapper creates a Mapper from the mapping configuration.
func NewMapper(cfg config.MappingConfig, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &Mapper{
		fields:     cfg.Fields,
		completion: cfg.Completion,
		parent:     cfg.Parent,
		desc:       cfg.Description,
		dates:      w,
		logger:     logger,
	}
}

// Completion returns the configured completion property mapping.
func (m *Mapper) Completion() config.CompletionConfig {
	return m.completion
}

// Parent returns the configured parent relation mapping.
func (m *Mapper) Parent() config.ParentConfig {
	return m.parent
}

// TrackerWrite is a computed tracker-side write payload plus the references
// the engine must resolve before writing: a project by name and a parent by
// planner page id.
type TrackerWrite struct {
	Fields tracker.Fields

	// ProjectName is the unresolved planner-side project reference. The
	// engine resolves it to a tracker project id, dropping it with a warning
	// when no project matches.
	ProjectName string

	// ParentPlannerID is the planner page id of the parent relation, if any.
	ParentPlannerID string
}

// ToTrackerFields computes the tracker write payload for a planner page by
// walking the mapping table. Properties absent from the page or empty map to
// nothing. Returns ErrMissingTitle when no content line results.
func (m *Mapper) ToTrackerFields(page *planner.Page) (*TrackerWrite, error) {
	w := &TrackerWrite{}

	for property, target := range m.fields {
		v, ok := page.Property(property)
		if !ok || v.IsEmpty() {
			continue
		}

		switch target {
		case targetContent:
			w.Fields.Content = tracker.String(v.PlainText())
		case targetDescription:
			w.Fields.Description = tracker.String(v.PlainText())
		case targetPriority:
			if p := extractPriority(&v); p != 0 {
				w.Fields.Priority = tracker.Int(task.PriorityToTracker(p))
			}
		case targetProject:
			w.ProjectName = v.PlainText()
		case targetLabels:
			w.Fields.Labels = task.NormalizeLabels(extractLabels(&v))
		case targetDue:
			m.mapDue(&v, &w.Fields)
		}
	}

	// Synthesized descriptions override a directly mapped one.
	if m.desc.Enabled {
		if desc := m.BuildDescription(page); desc != "" {
			w.Fields.Description = tracker.String(desc)
		}
	}

	if m.parent.Property != "" {
		if v, ok := page.Property(m.parent.Property); ok && len(v.Relation) > 0 {
			w.ParentPlannerID = v.Relation[0]
		}
	}

	if w.Fields.Content == nil || *w.Fields.Content == "" {
		return nil, fmt.Errorf("%w: page %s", ErrMissingTitle, page.ID)
	}

	return w, nil
}

// mapDue translates a planner due value into tracker due fields, honoring the
// preference order exact timestamp > date-only > free text. Recurrence
// expressions pass through verbatim; other free text is resolved to an exact
// date when one can be derived, because re-parsing natural language on every
// sync is not idempotent.
func (m *Mapper) mapDue(v *task.FieldValue, fields *tracker.Fields) {
	if v.Kind == task.KindDate {
		if v.Date.HasTime() {
			fields.DueDatetime = tracker.String(v.Date.Start)
		} else {
			fields.DueDate = tracker.String(v.Date.Start)
		}

		return
	}

	text := v.PlainText()
	if text == "" {
		return
	}

	if task.IsRecurrenceText(text) {
		fields.DueString = tracker.String(text)
		return
	}

	if r, err := m.dates.Parse(text, time.Now()); err == nil && r != nil {
		fields.DueDatetime = tracker.String(r.Time.UTC().Format(time.RFC3339))
		return
	}

	fields.DueString = tracker.String(text)
}

// IsCompleted reports whether the page's completion status property equals
// the configured done value.
func (m *Mapper) IsCompleted(page *planner.Page) bool {
	v, ok := page.Property(m.completion.Property)
	return ok && v.Option == m.completion.DoneValue
}

// BuildDescription synthesizes a description from the configured ordered list
// of source properties. Each property is extracted as text, its format
// template applied, and the non-empty results joined with the configured
// separator. A property yielding no text is skipped silently.
func (m *Mapper) BuildDescription(page *planner.Page) string {
	var parts []string

	for _, f := range m.desc.Fields {
		v, ok := page.Property(f.Name)
		if !ok {
			continue
		}

		text := v.PlainText()
		if text == "" {
			continue
		}

		if f.Format != "" {
			text = strings.ReplaceAll(f.Format, "{value}", text)
		}

		parts = append(parts, text)
	}

	return strings.Join(parts, m.desc.Separator)
}

// NormalizePage builds the normalized task view of a planner page.
func (m *Mapper) NormalizePage(page *planner.Page) *task.Task {
	t := &task.Task{
		ID:             page.ID,
		Completed:      m.IsCompleted(page),
		CreatedAt:      page.CreatedTime,
		LastModifiedAt: page.LastEditedTime,
	}

	for property, target := range m.fields {
		v, ok := page.Property(property)
		if !ok || v.IsEmpty() {
			continue
		}

		switch target {
		case targetContent:
			t.Title = v.PlainText()
		case targetDescription:
			t.Description = v.PlainText()
		case targetPriority:
			t.Priority = extractPriority(&v)
		case targetProject:
			t.Project = v.PlainText()
		case targetLabels:
			t.Labels = task.NormalizeLabels(extractLabels(&v))
		case targetDue:
			t.Due = normalizeDueValue(&v)
		}
	}

	if t.Due != nil && t.Due.IsRecurrence() {
		t.Recurring = true
	}

	if m.parent.Property != "" {
		if v, ok := page.Property(m.parent.Property); ok && len(v.Relation) > 0 {
			t.ParentID = v.Relation[0]
		}
	}

	return t
}

// NormalizeTrackerTask builds the normalized task view of a tracker task.
// The tracker exposes no modification timestamp, so LastModifiedAt stays
// zero and CreatedAt is the best-known time.
func NormalizeTrackerTask(t *tracker.Task) *task.Task {
	n := &task.Task{
		ID:          t.ID,
		Title:       t.Content,
		Description: t.Description,
		Priority:    task.PriorityFromTracker(t.Priority),
		Labels:      task.NormalizeLabels(t.Labels),
		ParentID:    t.ParentID,
		Project:     t.ProjectID,
		Completed:   t.Completed,
		Recurring:   t.IsRecurring(),
		CreatedAt:   t.CreatedAt,
	}

	if t.Due != nil {
		d := &task.Due{Date: t.Due.Date, Text: t.Due.String}
		if t.Due.Datetime != "" {
			if ts, err := time.Parse(time.RFC3339, t.Due.Datetime); err == nil {
				d.DateTime = ts
			}
		}

		n.Due = d
	}

	return n
}

// PlannerProperties computes the planner property payloads for the mapped
// fields whose tracker-side value differs from the page's current value.
// An empty map means the page is already up to date. Due values are never
// cleared from this path, and a synthesized description is never written
// back.
func (m *Mapper) PlannerProperties(t *tracker.Task, page *planner.Page) map[string]any {
	props := make(map[string]any)

	for property, target := range m.fields {
		current, ok := page.Property(property)
		if !ok {
			continue
		}

		switch target {
		case targetContent:
			if t.Content != "" && t.Content != current.Text {
				props[property] = textPayload(&current, t.Content)
			}
		case targetDescription:
			if m.desc.Enabled {
				continue
			}

			if t.Description != current.Text {
				props[property] = textPayload(&current, t.Description)
			}
		case targetPriority:
			want := task.PriorityFromTracker(t.Priority)
			if t.Priority != 0 && extractPriority(&current) != want {
				props[property] = priorityPayload(&current, want)
			}
		case targetLabels:
			if t.Labels != nil && !task.LabelSetsEqual(t.Labels, current.Options) {
				props[property] = planner.MultiSelectProperty(task.NormalizeLabels(t.Labels))
			}
		case targetDue:
			if start := trackerDueStart(t.Due); start != "" && (current.Date == nil || current.Date.Start != start) {
				props[property] = planner.DateProperty(start)
			}
		}
	}

	return props
}

// CompletionTransition returns the planner property payload for a completion
// state change, or nil when the configured value for the transition is empty.
func (m *Mapper) CompletionTransition(completed bool) map[string]any {
	value := m.completion.DoneValue
	if !completed {
		value = m.completion.ReopenValue
	}

	if value == "" {
		return nil
	}

	return map[string]any{m.completion.Property: planner.StatusProperty(value)}
}

// SuppressRecurringDue clears pending due writes when the target task already
// carries a tracker-managed recurrence and the incoming value is not itself a
// recurrence expression. Without this, an echoed plain date would silently
// strip the recurrence.
func SuppressRecurringDue(fields *tracker.Fields, target *tracker.Task) bool {
	if target == nil || !target.IsRecurring() {
		return false
	}

	if fields.DueDate == nil && fields.DueDatetime == nil && fields.DueString == nil {
		return false
	}

	if fields.DueString != nil && task.IsRecurrenceText(*fields.DueString) {
		return false
	}

	fields.DueDate = nil
	fields.DueDatetime = nil
	fields.DueString = nil

	return true
}

// --- extraction helpers ---

// extractPriority reads an ordinal priority from a property value: numbers
// directly, select/status/text by their first digit run. Zero means no
// priority could be extracted.
func extractPriority(v *task.FieldValue) int {
	if v.Kind == task.KindNumber {
		if v.Number == nil {
			return 0
		}

		return int(*v.Number)
	}

	text := v.PlainText()

	start := strings.IndexFunc(text, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0
	}

	end := start
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(text[start:end])
	if err != nil {
		return 0
	}

	return n
}

// extractLabels reads a label list: multi-selects as their option names, any
// other kind as a single label.
func extractLabels(v *task.FieldValue) []string {
	if v.Kind == task.KindMultiSelect {
		return v.Options
	}

	if text := v.PlainText(); text != "" {
		return []string{text}
	}

	return nil
}

// normalizeDueValue converts a planner due property to the normalized Due.
func normalizeDueValue(v *task.FieldValue) *task.Due {
	if v.Kind == task.KindDate {
		d := &task.Due{}
		if v.Date.HasTime() {
			if ts, err := time.Parse(time.RFC3339, v.Date.Start); err == nil {
				d.DateTime = ts
				return d
			}
		}

		d.Date = v.Date.Start

		return d
	}

	if text := v.PlainText(); text != "" {
		return &task.Due{Text: text}
	}

	return nil
}

// trackerDueStart returns the tracker due value in planner date-start form,
// preferring the exact timestamp over the date-only value.
func trackerDueStart(d *tracker.Due) string {
	if d == nil {
		return ""
	}

	if d.Datetime != "" {
		return d.Datetime
	}

	return d.Date
}

// textPayload builds a title or rich_text property payload matching the
// property's current kind.
func textPayload(current *task.FieldValue, text string) any {
	if current.Kind == task.KindTitle {
		return planner.TitleProperty(text)
	}

	return planner.RichTextProperty(text)
}

// priorityPayload builds a priority property payload matching the property's
// current kind.
func priorityPayload(current *task.FieldValue, priority int) any {
	switch current.Kind {
	case task.KindNumber:
		return map[string]any{"number": float64(priority)}
	case task.KindStatus:
		return planner.StatusProperty(strconv.Itoa(priority))
	default:
		return planner.SelectProperty(strconv.Itoa(priority))
	}
}
