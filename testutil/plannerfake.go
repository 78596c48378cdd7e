// Package testutil provides in-memory fake planner and tracker services for
// end-to-end tests. The fakes speak the same wire formats as the real APIs so
// the production HTTP clients run against them unchanged.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// PlannerFake is an in-memory planner API server. Pages are stored in wire
// format (typed property envelopes), so GET responses need no conversion.
type PlannerFake struct {
	mu       sync.Mutex
	token    string
	database string
	pages    map[string]map[string]any
	nextID   int

	srv *httptest.Server
}

// NewPlannerFake starts a fake planner server. The caller owns Close.
func NewPlannerFake(token, databaseID string) *PlannerFake {
	f := &PlannerFake{
		token:    token,
		database: databaseID,
		pages:    make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /pages/{id}", f.handleGetPage)
	mux.HandleFunc("PATCH /pages/{id}", f.handlePatchPage)
	mux.HandleFunc("POST /databases/{db}/query", f.handleQuery)

	f.srv = httptest.NewServer(f.requireAuth(mux))

	return f
}

// URL returns the fake's base URL.
func (f *PlannerFake) URL() string { return f.srv.URL }

// Close shuts the server down.
func (f *PlannerFake) Close() { f.srv.Close() }

// nowStamp returns the current time at nanosecond precision. Edit timestamps
// must compare strictly later than sync times recorded between two edits, so
// truncating to seconds is not an option here.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// AddPage creates a page with the given properties and returns its id.
// Property values must be in wire format; use the *Value builders.
func (f *PlannerFake) AddPage(properties map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("page-%d", f.nextID)
	now := nowStamp()

	f.pages[id] = map[string]any{
		"id":               id,
		"created_time":     now,
		"last_edited_time": now,
		"archived":         false,
		"properties":       properties,
	}

	return id
}

// SetProperty replaces one property on a page and bumps its edit time.
func (f *PlannerFake) SetProperty(pageID, name string, value map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[pageID]
	if !ok {
		panic("plannerfake: unknown page " + pageID)
	}

	page["properties"].(map[string]any)[name] = value
	page["last_edited_time"] = nowStamp()
}

// RemovePage hard-deletes a page, simulating a deletion webhook's aftermath.
func (f *PlannerFake) RemovePage(pageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.pages, pageID)
}

// Property returns the wire-format value of one property, or nil.
func (f *PlannerFake) Property(pageID, name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[pageID]
	if !ok {
		return nil
	}

	v, ok := page["properties"].(map[string]any)[name]
	if !ok {
		return nil
	}

	return v.(map[string]any)
}

// Archived reports whether the page has been archived.
func (f *PlannerFake) Archived(pageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[pageID]
	if !ok {
		return false
	}

	return page["archived"].(bool)
}

func (f *PlannerFake) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (f *PlannerFake) handleGetPage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"message":"page not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, page)
}

// patchRequest is the planner's page update body.
type patchRequest struct {
	Properties map[string]map[string]any `json:"properties"`
	Archived   *bool                     `json:"archived"`
}

func (f *PlannerFake) handlePatchPage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, ok := f.pages[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"message":"page not found"}`, http.StatusNotFound)
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
		return
	}

	props := page["properties"].(map[string]any)
	for name, payload := range req.Properties {
		props[name] = readFormat(payload)
	}

	if req.Archived != nil {
		page["archived"] = *req.Archived
	}

	page["last_edited_time"] = nowStamp()

	writeJSON(w, page)
}

// queryBody is the subset of the query filter the fake interprets: the
// last_edited_time "after" condition.
type queryBody struct {
	Filter struct {
		And []struct {
			Timestamp      string `json:"timestamp"`
			LastEditedTime *struct {
				After string `json:"after"`
			} `json:"last_edited_time"`
		} `json:"and"`
	} `json:"filter"`
}

func (f *PlannerFake) handleQuery(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PathValue("db") != f.database {
		http.Error(w, `{"message":"database not found"}`, http.StatusNotFound)
		return
	}

	var req queryBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
		return
	}

	var after time.Time

	for _, cond := range req.Filter.And {
		if cond.Timestamp == "last_edited_time" && cond.LastEditedTime != nil {
			after, _ = time.Parse(time.RFC3339, cond.LastEditedTime.After)
		}
	}

	results := make([]map[string]any, 0)

	for _, page := range f.pages {
		edited, _ := time.Parse(time.RFC3339, page["last_edited_time"].(string))
		if edited.After(after) {
			results = append(results, page)
		}
	}

	writeJSON(w, map[string]any{"results": results, "has_more": false, "next_cursor": ""})
}

// readFormat converts a write payload ({"select": {...}}) into the read
// envelope the GET endpoint serves ({"type": "select", "select": {...}}).
// Title and rich text spans additionally change shape between the two.
func readFormat(payload map[string]any) map[string]any {
	for key, value := range payload {
		switch key {
		case "title", "rich_text":
			return map[string]any{"type": key, key: writeSpansToRead(value)}
		case "select", "multi_select", "status", "date", "checkbox", "number", "relation":
			return map[string]any{"type": key, key: value}
		}
	}

	return map[string]any{"type": ""}
}

// writeSpansToRead converts write spans [{"text":{"content":s}}] to read
// spans [{"plain_text":s}].
func writeSpansToRead(value any) []map[string]any {
	spans, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]map[string]any, 0, len(spans))

	for _, s := range spans {
		span, ok := s.(map[string]any)
		if !ok {
			continue
		}

		text, ok := span["text"].(map[string]any)
		if !ok {
			continue
		}

		content, _ := text["content"].(string)
		out = append(out, map[string]any{"plain_text": content})
	}

	return out
}

// --- wire-format property builders ---

// TitleValue builds a read-format title property.
func TitleValue(s string) map[string]any {
	return map[string]any{"type": "title", "title": []map[string]any{{"plain_text": s}}}
}

// RichTextValue builds a read-format rich_text property.
func RichTextValue(s string) map[string]any {
	return map[string]any{"type": "rich_text", "rich_text": []map[string]any{{"plain_text": s}}}
}

// SelectValue builds a read-format select property.
func SelectValue(name string) map[string]any {
	return map[string]any{"type": "select", "select": map[string]any{"name": name}}
}

// MultiSelectValue builds a read-format multi_select property.
func MultiSelectValue(names ...string) map[string]any {
	opts := make([]map[string]any, 0, len(names))
	for _, n := range names {
		opts = append(opts, map[string]any{"name": n})
	}

	return map[string]any{"type": "multi_select", "multi_select": opts}
}

// StatusValue builds a read-format status property.
func StatusValue(name string) map[string]any {
	return map[string]any{"type": "status", "status": map[string]any{"name": name}}
}

// DateValue builds a read-format date property.
func DateValue(start string) map[string]any {
	return map[string]any{"type": "date", "date": map[string]any{"start": start}}
}

// RelationValue builds a read-format relation property.
func RelationValue(ids ...string) map[string]any {
	refs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, map[string]any{"id": id})
	}

	return map[string]any{"type": "relation", "relation": refs}
}

// SpanText extracts the joined plain text from a read-format title or
// rich_text property, for test assertions.
func SpanText(prop map[string]any) string {
	kind, _ := prop["type"].(string)

	spans, ok := prop[kind].([]map[string]any)
	if !ok {
		// Round-tripped through JSON the spans decode as []any.
		raw, ok := prop[kind].([]any)
		if !ok {
			return ""
		}

		for _, s := range raw {
			if m, ok := s.(map[string]any); ok {
				spans = append(spans, m)
			}
		}
	}

	var b strings.Builder

	for _, s := range spans {
		if t, ok := s["plain_text"].(string); ok {
			b.WriteString(t)
		}
	}

	return b.String()
}

// OptionName extracts the selected option name from a read-format select or
// status property.
func OptionName(prop map[string]any) string {
	kind, _ := prop["type"].(string)

	opt, ok := prop[kind].(map[string]any)
	if !ok {
		return ""
	}

	name, _ := opt["name"].(string)

	return name
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
