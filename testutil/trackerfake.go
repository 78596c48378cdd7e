package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/taskbridge/taskbridge/internal/task"
	"github.com/taskbridge/taskbridge/internal/tracker"
)

// TrackerFake is an in-memory tracker API server backing the production
// tracker client in end-to-end tests.
type TrackerFake struct {
	mu       sync.Mutex
	token    string
	tasks    map[string]*tracker.Task
	comments []tracker.Comment
	projects []tracker.Project
	labels   []tracker.Label
	nextID   int
	clock    time.Time

	srv *httptest.Server
}

// NewTrackerFake starts a fake tracker server. The caller owns Close.
func NewTrackerFake(token string) *TrackerFake {
	f := &TrackerFake{
		token: token,
		tasks: make(map[string]*tracker.Task),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", f.handleListTasks)
	mux.HandleFunc("POST /tasks", f.handleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", f.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}", f.handleUpdateTask)
	mux.HandleFunc("POST /tasks/{id}/move", f.handleMoveTask)
	mux.HandleFunc("POST /tasks/{id}/close", f.handleCloseTask)
	mux.HandleFunc("POST /tasks/{id}/reopen", f.handleReopenTask)
	mux.HandleFunc("DELETE /tasks/{id}", f.handleDeleteTask)
	mux.HandleFunc("POST /comments", f.handleAddComment)
	mux.HandleFunc("GET /comments", f.handleListComments)
	mux.HandleFunc("GET /projects", f.handleListProjects)
	mux.HandleFunc("GET /labels", f.handleListLabels)
	mux.HandleFunc("POST /labels", f.handleCreateLabel)

	f.srv = httptest.NewServer(f.requireAuth(mux))

	return f
}

// URL returns the fake's base URL.
func (f *TrackerFake) URL() string { return f.srv.URL }

// Close shuts the server down.
func (f *TrackerFake) Close() { f.srv.Close() }

func (f *TrackerFake) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// AddProject registers a project in the fake's catalog.
func (f *TrackerFake) AddProject(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.projects = append(f.projects, tracker.Project{ID: id, Name: name})
}

// Task returns a copy of the stored task, or nil.
func (f *TrackerFake) Task(taskID string) *tracker.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[taskID]
	if !ok {
		return nil
	}

	cp := *t

	return &cp
}

// TaskCount returns the number of stored tasks, completed included.
func (f *TrackerFake) TaskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.tasks)
}

// OnlyTask returns the single stored task; it panics when the count is not 1.
func (f *TrackerFake) OnlyTask() *tracker.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.tasks) != 1 {
		panic(fmt.Sprintf("trackerfake: want exactly 1 task, have %d", len(f.tasks)))
	}

	for _, t := range f.tasks {
		cp := *t
		return &cp
	}

	return nil
}

// SetContent edits a task's content directly, simulating a user edit in the
// tracker UI.
func (f *TrackerFake) SetContent(taskID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[taskID]
	if !ok {
		panic("trackerfake: unknown task " + taskID)
	}

	t.Content = content
}

// SetPriority edits a task's priority directly, simulating a user edit.
func (f *TrackerFake) SetPriority(taskID string, priority int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[taskID]
	if !ok {
		panic("trackerfake: unknown task " + taskID)
	}

	t.Priority = priority
}

// SetCompleted flips a task's completion state directly.
func (f *TrackerFake) SetCompleted(taskID string, completed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[taskID]
	if !ok {
		panic("trackerfake: unknown task " + taskID)
	}

	t.Completed = completed
}

// RemoveTask hard-deletes a task, simulating a deletion in the tracker UI.
func (f *TrackerFake) RemoveTask(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.tasks, taskID)
}

// CommentsFor returns all comments attached to a task.
func (f *TrackerFake) CommentsFor(taskID string) []tracker.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tracker.Comment

	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}

	return out
}

// LabelNames returns the names of all labels in the catalog.
func (f *TrackerFake) LabelNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.labels))
	for _, l := range f.labels {
		names = append(names, l.Name)
	}

	return names
}

func (f *TrackerFake) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (f *TrackerFake) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	label := r.URL.Query().Get("label")
	out := make([]tracker.Task, 0)

	for _, t := range f.tasks {
		if t.Completed {
			continue
		}

		if label != "" && !hasLabel(t.Labels, label) {
			continue
		}

		out = append(out, *t)
	}

	writeJSON(w, out)
}

func (f *TrackerFake) handleGetTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, t)
}

func (f *TrackerFake) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fields tracker.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	if fields.Content == nil || *fields.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	f.nextID++
	t := &tracker.Task{
		ID:        fmt.Sprintf("task-%d", f.nextID),
		CreatedAt: f.tick(),
	}
	applyFields(t, &fields)

	f.tasks[t.ID] = t

	writeJSON(w, t)
}

func (f *TrackerFake) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	var fields tracker.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	applyFields(t, &fields)
	writeJSON(w, t)
}

func (f *TrackerFake) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	var body struct {
		ProjectID string `json:"project_id"`
		ParentID  string `json:"parent_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	if body.ProjectID != "" {
		t.ProjectID = body.ProjectID
	}

	if body.ParentID != "" {
		t.ParentID = body.ParentID
	}

	w.WriteHeader(http.StatusNoContent)
}

func (f *TrackerFake) handleCloseTask(w http.ResponseWriter, r *http.Request) {
	f.setCompletion(w, r, true)
}

func (f *TrackerFake) handleReopenTask(w http.ResponseWriter, r *http.Request) {
	f.setCompletion(w, r, false)
}

func (f *TrackerFake) setCompletion(w http.ResponseWriter, r *http.Request, completed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	t.Completed = completed
	w.WriteHeader(http.StatusNoContent)
}

func (f *TrackerFake) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := f.tasks[id]; !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	delete(f.tasks, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *TrackerFake) handleAddComment(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body struct {
		TaskID  string `json:"task_id"`
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	f.nextID++
	c := tracker.Comment{
		ID:      fmt.Sprintf("comment-%d", f.nextID),
		TaskID:  body.TaskID,
		Content: body.Content,
	}
	f.comments = append(f.comments, c)

	writeJSON(w, c)
}

func (f *TrackerFake) handleListComments(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")

	out := f.CommentsFor(taskID)
	if out == nil {
		out = []tracker.Comment{}
	}

	writeJSON(w, out)
}

func (f *TrackerFake) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, f.projects)
}

func (f *TrackerFake) handleListLabels(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, f.labels)
}

func (f *TrackerFake) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	f.nextID++
	l := tracker.Label{ID: fmt.Sprintf("label-%d", f.nextID), Name: body.Name}
	f.labels = append(f.labels, l)

	writeJSON(w, l)
}

// applyFields applies a write payload to a task, matching the real API's
// semantics: nil leaves a field unchanged, a due write replaces the whole due.
func applyFields(t *tracker.Task, fields *tracker.Fields) {
	if fields.Content != nil {
		t.Content = *fields.Content
	}

	if fields.Description != nil {
		t.Description = *fields.Description
	}

	if fields.Priority != nil {
		t.Priority = *fields.Priority
	}

	if fields.Labels != nil {
		t.Labels = fields.Labels
	}

	if fields.ProjectID != nil {
		t.ProjectID = *fields.ProjectID
	}

	if fields.ParentID != nil {
		t.ParentID = *fields.ParentID
	}

	switch {
	case fields.DueDatetime != nil:
		t.Due = &tracker.Due{Datetime: *fields.DueDatetime}
	case fields.DueDate != nil:
		t.Due = &tracker.Due{Date: *fields.DueDate}
	case fields.DueString != nil:
		t.Due = &tracker.Due{
			String:    *fields.DueString,
			Recurring: task.IsRecurrenceText(*fields.DueString),
		}
	}
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}

	return false
}
