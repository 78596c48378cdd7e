package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbridge/taskbridge/internal/config"
	"github.com/taskbridge/taskbridge/internal/task"
	"github.com/taskbridge/taskbridge/internal/tracker"
)

func TestToTrackerFields_FullMapping(t *testing.T) {
	m := newTestMapper(t)

	page := newPage("p-1").
		title("Buy milk").
		notes("2% only").
		priority("P1").
		tags("errand", "home").
		due("2024-01-10").
		project("Groceries").
		build()

	w, err := m.ToTrackerFields(page)
	require.NoError(t, err)

	require.NotNil(t, w.Fields.Content)
	assert.Equal(t, "Buy milk", *w.Fields.Content)

	require.NotNil(t, w.Fields.Description)
	assert.Equal(t, "2% only", *w.Fields.Description)

	// Planner P1 (highest) maps to tracker 4 (highest).
	require.NotNil(t, w.Fields.Priority)
	assert.Equal(t, 4, *w.Fields.Priority)

	assert.Equal(t, []string{"errand", "home"}, w.Fields.Labels)

	require.NotNil(t, w.Fields.DueDate)
	assert.Equal(t, "2024-01-10", *w.Fields.DueDate)
	assert.Nil(t, w.Fields.DueDatetime)

	assert.Equal(t, "Groceries", w.ProjectName)
}

func TestToTrackerFields_MissingTitle(t *testing.T) {
	m := newTestMapper(t)

	_, err := m.ToTrackerFields(newPage("p-1").priority("P2").build())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingTitle))
}

func TestToTrackerFields_EmptyPropertiesSkipped(t *testing.T) {
	m := newTestMapper(t)

	page := newPage("p-1").title("Just a title").build()

	w, err := m.ToTrackerFields(page)
	require.NoError(t, err)

	assert.Nil(t, w.Fields.Description)
	assert.Nil(t, w.Fields.Priority)
	assert.Nil(t, w.Fields.Labels)
	assert.Nil(t, w.Fields.DueDate)
	assert.Empty(t, w.ProjectName)
}

func TestToTrackerFields_DuePreference(t *testing.T) {
	m := newTestMapper(t)

	t.Run("timestamp beats date", func(t *testing.T) {
		page := newPage("p-1").title("t").due("2024-01-10T09:00:00Z").build()

		w, err := m.ToTrackerFields(page)
		require.NoError(t, err)

		require.NotNil(t, w.Fields.DueDatetime)
		assert.Equal(t, "2024-01-10T09:00:00Z", *w.Fields.DueDatetime)
		assert.Nil(t, w.Fields.DueDate)
	})

	t.Run("recurrence text passes verbatim", func(t *testing.T) {
		page := newPage("p-1").title("t").dueText("every friday").build()

		w, err := m.ToTrackerFields(page)
		require.NoError(t, err)

		require.NotNil(t, w.Fields.DueString)
		assert.Equal(t, "every friday", *w.Fields.DueString)
		assert.Nil(t, w.Fields.DueDatetime)
	})

	t.Run("derivable text resolves to exact timestamp", func(t *testing.T) {
		page := newPage("p-1").title("t").dueText("tomorrow at 5pm").build()

		w, err := m.ToTrackerFields(page)
		require.NoError(t, err)

		// The natural-language date resolves once, here, so round trips do
		// not re-parse it.
		assert.NotNil(t, w.Fields.DueDatetime)
		assert.Nil(t, w.Fields.DueString)
	})
}

func TestToTrackerFields_ParentRelation(t *testing.T) {
	m := newTestMapper(t)

	page := newPage("p-child").title("Child").parent("p-parent").build()

	w, err := m.ToTrackerFields(page)
	require.NoError(t, err)
	assert.Equal(t, "p-parent", w.ParentPlannerID)
}

func TestIsCompleted(t *testing.T) {
	m := newTestMapper(t)

	assert.True(t, m.IsCompleted(newPage("p").title("t").status("Done").build()))
	assert.False(t, m.IsCompleted(newPage("p").title("t").status("In Progress").build()))
	assert.False(t, m.IsCompleted(newPage("p").title("t").build()))
}

func TestBuildDescription(t *testing.T) {
	cfg := testMappingConfig()
	cfg.Description = config.DescriptionConfig{
		Enabled:   true,
		Separator: "\n---\n",
		Fields: []config.DescriptionFieldConfig{
			{Name: "Notes", Format: "Notes: {value}"},
			{Name: "Project"},
			{Name: "Missing prop", Format: "X: {value}"},
		},
	}

	m := NewMapper(cfg, testLogger(t))

	page := newPage("p-1").
		title("t").
		notes("remember the thing").
		project("Work").
		build()

	got := m.BuildDescription(page)
	assert.Equal(t, "Notes: remember the thing\n---\nWork", got)

	// Synthesized description overrides the mapped Notes property.
	w, err := m.ToTrackerFields(page)
	require.NoError(t, err)
	require.NotNil(t, w.Fields.Description)
	assert.Equal(t, got, *w.Fields.Description)
}

func TestNormalizePage(t *testing.T) {
	m := newTestMapper(t)

	page := newPage("p-1").
		title("Buy milk").
		priority("P2").
		tags("errand", "errand", "home").
		dueText("every friday").
		status("Done").
		parent("p-0").
		created("2024-01-01T00:00:00Z").
		edited("2024-01-05T00:00:00Z").
		build()

	n := m.NormalizePage(page)

	assert.Equal(t, "p-1", n.ID)
	assert.Equal(t, "Buy milk", n.Title)
	assert.Equal(t, 2, n.Priority)
	assert.Equal(t, []string{"errand", "home"}, n.Labels)
	assert.True(t, n.Completed)
	assert.True(t, n.Recurring)
	assert.Equal(t, "p-0", n.ParentID)
	assert.True(t, n.LastModifiedAt.Equal(parseTime("2024-01-05T00:00:00Z")))
}

func TestNormalizeTrackerTask(t *testing.T) {
	tk := &tracker.Task{
		ID:        "t-1",
		Content:   "Buy milk",
		Priority:  4, // tracker highest
		Labels:    []string{"errand", "errand"},
		Completed: true,
		CreatedAt: parseTime("2024-01-01T00:00:00Z"),
		Due: &tracker.Due{
			Date:      "2024-01-10",
			String:    "every friday",
			Recurring: true,
		},
	}

	n := NormalizeTrackerTask(tk)

	assert.Equal(t, "t-1", n.ID)
	assert.Equal(t, 1, n.Priority) // normalized highest
	assert.Equal(t, []string{"errand"}, n.Labels)
	assert.True(t, n.Completed)
	assert.True(t, n.Recurring)

	// No modification timestamp on the tracker side.
	assert.True(t, n.LastModifiedAt.IsZero())
	assert.True(t, n.ModifiedAt().Equal(parseTime("2024-01-01T00:00:00Z")))
}

func TestPlannerProperties_DiffOnly(t *testing.T) {
	m := newTestMapper(t)

	page := newPage("p-1").
		title("Buy milk").
		notes("old note").
		priority("2").
		tags("errand").
		due("2024-01-10").
		build()

	t.Run("identical task yields no writes", func(t *testing.T) {
		tk := &tracker.Task{
			Content:     "Buy milk",
			Description: "old note",
			Priority:    3, // tracker 3 == planner 2
			Labels:      []string{"errand"},
			Due:         &tracker.Due{Date: "2024-01-10"},
		}

		assert.Empty(t, m.PlannerProperties(tk, page))
	})

	t.Run("changed fields produce payloads", func(t *testing.T) {
		tk := &tracker.Task{
			Content:     "Buy oat milk",
			Description: "new note",
			Priority:    4, // planner 1
			Labels:      []string{"errand", "urgent"},
			Due:         &tracker.Due{Date: "2024-01-12"},
		}

		props := m.PlannerProperties(tk, page)

		assert.Contains(t, props, "Task name")
		assert.Contains(t, props, "Notes")
		assert.Contains(t, props, "Priority")
		assert.Contains(t, props, "Tags")
		assert.Contains(t, props, "Due")
	})

	t.Run("empty tracker due never clears planner due", func(t *testing.T) {
		tk := &tracker.Task{Content: "Buy milk", Description: "old note", Priority: 3, Labels: []string{"errand"}}

		props := m.PlannerProperties(tk, page)
		assert.NotContains(t, props, "Due")
	})
}

func TestCompletionTransition(t *testing.T) {
	m := newTestMapper(t)

	done := m.CompletionTransition(true)
	require.NotNil(t, done)
	assert.Contains(t, done, "Status")

	reopen := m.CompletionTransition(false)
	require.NotNil(t, reopen)

	t.Run("nil when reopen value unset", func(t *testing.T) {
		cfg := testMappingConfig()
		cfg.Completion.ReopenValue = ""
		m := NewMapper(cfg, testLogger(t))

		assert.Nil(t, m.CompletionTransition(false))
		assert.NotNil(t, m.CompletionTransition(true))
	})
}

func TestSuppressRecurringDue(t *testing.T) {
	recurringTask := &tracker.Task{
		Due: &tracker.Due{String: "every friday", Recurring: true},
	}

	t.Run("plain date suppressed on recurring task", func(t *testing.T) {
		fields := &tracker.Fields{DueDate: tracker.String("2024-01-10")}

		assert.True(t, SuppressRecurringDue(fields, recurringTask))
		assert.Nil(t, fields.DueDate)
	})

	t.Run("recurrence text allowed through", func(t *testing.T) {
		fields := &tracker.Fields{DueString: tracker.String("every monday")}

		assert.False(t, SuppressRecurringDue(fields, recurringTask))
		assert.NotNil(t, fields.DueString)
	})

	t.Run("non-recurring target untouched", func(t *testing.T) {
		fields := &tracker.Fields{DueDate: tracker.String("2024-01-10")}
		target := &tracker.Task{Due: &tracker.Due{Date: "2024-01-05"}}

		assert.False(t, SuppressRecurringDue(fields, target))
		assert.NotNil(t, fields.DueDate)
	})

	t.Run("no due write is a no-op", func(t *testing.T) {
		fields := &tracker.Fields{Content: tracker.String("x")}
		assert.False(t, SuppressRecurringDue(fields, recurringTask))
	})
}

func TestExtractPriority(t *testing.T) {
	n := 2.0

	cases := []struct {
		name string
		v    task.FieldValue
		want int
	}{
		{"number", task.FieldValue{Kind: task.KindNumber, Number: &n}, 2},
		{"select P1", task.FieldValue{Kind: task.KindSelect, Option: "P1"}, 1},
		{"select High (3)", task.FieldValue{Kind: task.KindSelect, Option: "High (3)"}, 3},
		{"no digits", task.FieldValue{Kind: task.KindSelect, Option: "High"}, 0},
		{"empty number", task.FieldValue{Kind: task.KindNumber}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractPriority(&tc.v))
		})
	}
}
