package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityBijection(t *testing.T) {
	// Planner 1 (highest) pairs with tracker 4 (highest).
	pairs := map[int]int{1: 4, 2: 3, 3: 2, 4: 1}

	for planner, tracker := range pairs {
		assert.Equal(t, tracker, PriorityToTracker(planner))
		assert.Equal(t, planner, PriorityFromTracker(tracker))
	}
}

func TestPriorityRoundTrip(t *testing.T) {
	for p := PriorityHighest; p <= PriorityLowest; p++ {
		assert.Equal(t, p, PriorityFromTracker(PriorityToTracker(p)), "priority %d", p)
	}
}

func TestPriorityOutOfRange(t *testing.T) {
	// Out-of-range values clamp to lowest urgency instead of failing.
	assert.Equal(t, 1, PriorityToTracker(0))
	assert.Equal(t, 1, PriorityToTracker(7))
	assert.Equal(t, PriorityLowest, PriorityFromTracker(0))
	assert.Equal(t, PriorityLowest, PriorityFromTracker(99))
}

func TestModifiedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	modified := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("prefers modification time", func(t *testing.T) {
		tk := &Task{CreatedAt: created, LastModifiedAt: modified}
		assert.Equal(t, modified, tk.ModifiedAt())
	})

	t.Run("falls back to creation time", func(t *testing.T) {
		tk := &Task{CreatedAt: created}
		assert.Equal(t, created, tk.ModifiedAt())
	})

	t.Run("zero when nothing known", func(t *testing.T) {
		tk := &Task{}
		assert.True(t, tk.ModifiedAt().IsZero())
	})
}

func TestIsRecurrenceText(t *testing.T) {
	recurring := []string{
		"every friday",
		"Every other monday",
		"daily at 9am",
		"weekly",
		"each workday",
		"ev MONTHLY report", // contains "monthly"
	}
	for _, s := range recurring {
		assert.True(t, IsRecurrenceText(s), "%q", s)
	}

	oneOff := []string{
		"",
		"tomorrow",
		"2024-06-01",
		"next friday",
		"jan 15",
	}
	for _, s := range oneOff {
		assert.False(t, IsRecurrenceText(s), "%q", s)
	}
}

func TestDueRecurrence(t *testing.T) {
	assert.True(t, (&Due{Text: "every friday"}).IsRecurrence())
	assert.False(t, (&Due{Text: "tomorrow"}).IsRecurrence())
	assert.False(t, (*Due)(nil).IsRecurrence())
}

func TestNormalizeLabels(t *testing.T) {
	assert.Nil(t, NormalizeLabels(nil))
	assert.Equal(t, []string{"a", "b"}, NormalizeLabels([]string{"a", "b", "a"}))
	assert.Equal(t, []string{"x"}, NormalizeLabels([]string{"x", "x", "x"}))
}

func TestLabelSetsEqual(t *testing.T) {
	assert.True(t, LabelSetsEqual(nil, nil))
	assert.True(t, LabelSetsEqual([]string{"a", "b"}, []string{"b", "a"}))
	assert.True(t, LabelSetsEqual([]string{"a", "a", "b"}, []string{"b", "a"}))
	assert.False(t, LabelSetsEqual([]string{"a"}, []string{"a", "b"}))
	assert.False(t, LabelSetsEqual([]string{"a"}, []string{"c"}))
}
