// Package tracker implements the HTTP client for the flat task manager
// (side B of the bridge). Tasks carry a content line, a 1–4 priority where 4
// is the most urgent, label names, and an optional managed due schedule.
package tracker

import (
	"time"
)

// Task is a raw tracker task: the side-B snapshot before normalization.
type Task struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"` // 4 = highest, 1 = lowest
	ProjectID   string    `json:"project_id"`
	ParentID    string    `json:"parent_id"`
	Labels      []string  `json:"labels"`
	Completed   bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	Due         *Due      `json:"due"`
}

// IsRecurring reports whether the tracker manages a repeating schedule for
// this task.
func (t *Task) IsRecurring() bool {
	return t.Due != nil && t.Due.Recurring
}

// Due is the tracker's due field. The tracker keeps both the resolved date
// and the original human-entered string; Recurring marks a managed repeating
// schedule.
type Due struct {
	Date      string `json:"date"`     // "2006-01-02"
	Datetime  string `json:"datetime"` // RFC 3339, empty for date-only dues
	String    string `json:"string"`   // human-entered text, e.g. "every friday"
	Recurring bool   `json:"is_recurring"`
}

// Project is a tracker project (the flat grouping unit).
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label is a tracker label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Comment is a note attached to a task. The bridge stores its durable
// back-reference to the planner page as a comment.
type Comment struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	Content string `json:"content"`
}

// Fields is the write payload for task create and update calls. Pointer
// fields distinguish "leave unchanged" (nil) from "set to zero value".
type Fields struct {
	Content     *string  `json:"content,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	ProjectID   *string  `json:"project_id,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	DueDatetime *string  `json:"due_datetime,omitempty"`
	DueString   *string  `json:"due_string,omitempty"`
}

// IsZero reports whether no field is set.
func (f *Fields) IsZero() bool {
	return f.Content == nil && f.Description == nil && f.Priority == nil &&
		f.ProjectID == nil && f.ParentID == nil && f.Labels == nil &&
		f.DueDate == nil && f.DueDatetime == nil && f.DueString == nil
}

// String returns a pointer to s, for Fields construction.
func String(s string) *string { return &s }

// Int returns a pointer to i, for Fields construction.
func Int(i int) *int { return &i }
