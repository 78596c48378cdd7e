package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/taskbridge/taskbridge/internal/rest"
)

// DefaultBaseURL is the tracker API endpoint.
const DefaultBaseURL = "https://api.tracker.example/v2"

// Client is the tracker API client.
type Client struct {
	rc     *rest.Client
	logger *slog.Logger
}

// NewClient creates a tracker client.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		rc:     rest.NewClient(baseURL, token, httpClient, logger),
		logger: logger,
	}
}

// GetTask fetches a single task by id.
// Returns rest.ErrNotFound (wrapped) when the task does not exist — which is
// also what the API reports for completed tasks on some endpoints, so callers
// must treat not-found as "skip", never as fatal.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	if err := c.rc.DoJSON(ctx, http.MethodGet, "/tasks/"+taskID, nil, &t); err != nil {
		return nil, fmt.Errorf("tracker: get task %s: %w", taskID, err)
	}

	return &t, nil
}

// ListTasks returns all active (uncompleted) tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.rc.DoJSON(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, fmt.Errorf("tracker: list tasks: %w", err)
	}

	return tasks, nil
}

// ListTasksByLabel returns all active tasks carrying the given label.
func (c *Client) ListTasksByLabel(ctx context.Context, label string) ([]Task, error) {
	path := "/tasks?label=" + url.QueryEscape(label)

	var tasks []Task
	if err := c.rc.DoJSON(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, fmt.Errorf("tracker: list tasks by label %q: %w", label, err)
	}

	return tasks, nil
}

// CreateTask creates a task. Fields.Content is required by the API.
func (c *Client) CreateTask(ctx context.Context, fields *Fields) (*Task, error) {
	var t Task
	if err := c.rc.PostJSON(ctx, "/tasks", fields, &t); err != nil {
		return nil, fmt.Errorf("tracker: create task: %w", err)
	}

	c.logger.Debug("created task", slog.String("task_id", t.ID))

	return &t, nil
}

// UpdateTask updates the given fields on a task. Parent and project changes
// must go through MoveTask; the update endpoint rejects them.
func (c *Client) UpdateTask(ctx context.Context, taskID string, fields *Fields) (*Task, error) {
	var t Task
	if err := c.rc.PostJSON(ctx, "/tasks/"+taskID, fields, &t); err != nil {
		return nil, fmt.Errorf("tracker: update task %s: %w", taskID, err)
	}

	return &t, nil
}

// MoveTask moves a task to a new project and/or parent. At least one of
// projectID and parentID must be non-empty.
func (c *Client) MoveTask(ctx context.Context, taskID, projectID, parentID string) error {
	if projectID == "" && parentID == "" {
		return fmt.Errorf("tracker: move task %s: no destination given", taskID)
	}

	body := make(map[string]string, 2)
	if projectID != "" {
		body["project_id"] = projectID
	}

	if parentID != "" {
		body["parent_id"] = parentID
	}

	if err := c.rc.PostJSON(ctx, "/tasks/"+taskID+"/move", body, nil); err != nil {
		return fmt.Errorf("tracker: move task %s: %w", taskID, err)
	}

	return nil
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, taskID string) error {
	if err := c.rc.PostJSON(ctx, "/tasks/"+taskID+"/close", nil, nil); err != nil {
		return fmt.Errorf("tracker: complete task %s: %w", taskID, err)
	}

	return nil
}

// ReopenTask reopens a completed task.
func (c *Client) ReopenTask(ctx context.Context, taskID string) error {
	if err := c.rc.PostJSON(ctx, "/tasks/"+taskID+"/reopen", nil, nil); err != nil {
		return fmt.Errorf("tracker: reopen task %s: %w", taskID, err)
	}

	return nil
}

// DeleteTask permanently deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	resp, err := c.rc.Do(ctx, http.MethodDelete, "/tasks/"+taskID, nil)
	if err != nil {
		return fmt.Errorf("tracker: delete task %s: %w", taskID, err)
	}

	return resp.Body.Close()
}

// AddComment attaches a comment to a task.
func (c *Client) AddComment(ctx context.Context, taskID, content string) error {
	body := map[string]string{"task_id": taskID, "content": content}

	if err := c.rc.PostJSON(ctx, "/comments", body, nil); err != nil {
		return fmt.Errorf("tracker: add comment to task %s: %w", taskID, err)
	}

	return nil
}

// ListComments returns all comments on a task.
func (c *Client) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	path := "/comments?task_id=" + url.QueryEscape(taskID)

	var comments []Comment
	if err := c.rc.DoJSON(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return nil, fmt.Errorf("tracker: list comments for task %s: %w", taskID, err)
	}

	return comments, nil
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.rc.DoJSON(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("tracker: list projects: %w", err)
	}

	return projects, nil
}

// EnsureLabel returns the named label, creating it if it does not exist.
// Name comparison is case-insensitive, matching the tracker's behavior.
func (c *Client) EnsureLabel(ctx context.Context, name string) (*Label, error) {
	var labels []Label
	if err := c.rc.DoJSON(ctx, http.MethodGet, "/labels", nil, &labels); err != nil {
		return nil, fmt.Errorf("tracker: list labels: %w", err)
	}

	for i := range labels {
		if strings.EqualFold(labels[i].Name, name) {
			return &labels[i], nil
		}
	}

	body := map[string]string{"name": name}

	var created Label
	if err := c.rc.PostJSON(ctx, "/labels", body, &created); err != nil {
		return nil, fmt.Errorf("tracker: create label %q: %w", name, err)
	}

	c.logger.Info("created label", slog.String("name", name))

	return &created, nil
}

// IsNotFound reports whether err represents a missing task, project, or label.
func IsNotFound(err error) bool {
	return errors.Is(err, rest.ErrNotFound)
}
