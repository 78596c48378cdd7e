// Package planner implements the HTTP client for the document-database
// planner (side A of the bridge). Pages live in a single tasks database;
// every task is a page whose fields are typed properties.
package planner

import (
	"time"

	"github.com/taskbridge/taskbridge/internal/task"
)

// Page is a raw planner page: the side-A snapshot of a task before field
// mapping. Properties preserve the wire's typed values; the mapper owns all
// per-type semantics.
type Page struct {
	ID             string                    `json:"id"`
	CreatedTime    time.Time                 `json:"created_time"`
	LastEditedTime time.Time                 `json:"last_edited_time"`
	Archived       bool                      `json:"archived"`
	Properties     map[string]task.FieldValue `json:"properties"`
}

// Property returns the named property and whether it exists.
func (p *Page) Property(name string) (task.FieldValue, bool) {
	v, ok := p.Properties[name]
	return v, ok
}

// queryRequest is the body of a database query call.
type queryRequest struct {
	Filter      any    `json:"filter,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// queryResponse is one page of database query results.
type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// timestampFilter matches pages edited after a point in time.
type timestampFilter struct {
	Timestamp      string          `json:"timestamp"`
	LastEditedTime *afterCondition `json:"last_edited_time"`
}

type afterCondition struct {
	After string `json:"after"`
}

// relationFilter matches pages whose relation property contains an id.
type relationFilter struct {
	Property string            `json:"property"`
	Relation relationCondition `json:"relation"`
}

type relationCondition struct {
	Contains string `json:"contains"`
}

// statusFilter matches pages by status property value.
type statusFilter struct {
	Property string          `json:"property"`
	Status   equalsCondition `json:"status"`
}

type equalsCondition struct {
	DoesNotEqual string `json:"does_not_equal,omitempty"`
	Equals       string `json:"equals,omitempty"`
}

// andFilter combines filters conjunctively.
type andFilter struct {
	And []any `json:"and"`
}

// --- property write payloads ---
// Builders for the typed property values the planner API expects on update.

type textSpan struct {
	Text textContent `json:"text"`
}

type textContent struct {
	Content string `json:"content"`
}

// TitleProperty builds a title property payload.
func TitleProperty(s string) any {
	return map[string]any{"title": []textSpan{{Text: textContent{Content: s}}}}
}

// RichTextProperty builds a rich_text property payload.
func RichTextProperty(s string) any {
	return map[string]any{"rich_text": []textSpan{{Text: textContent{Content: s}}}}
}

// SelectProperty builds a select property payload.
func SelectProperty(name string) any {
	return map[string]any{"select": map[string]string{"name": name}}
}

// MultiSelectProperty builds a multi_select property payload.
func MultiSelectProperty(names []string) any {
	opts := make([]map[string]string, 0, len(names))
	for _, n := range names {
		opts = append(opts, map[string]string{"name": n})
	}

	return map[string]any{"multi_select": opts}
}

// StatusProperty builds a status property payload.
func StatusProperty(name string) any {
	return map[string]any{"status": map[string]string{"name": name}}
}

// DateProperty builds a date property payload from a date-only or timestamp
// string.
func DateProperty(start string) any {
	return map[string]any{"date": map[string]string{"start": start}}
}
