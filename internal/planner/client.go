package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskbridge/taskbridge/internal/rest"
)

// DefaultBaseURL is the planner API endpoint.
const DefaultBaseURL = "https://api.planner.example/v1"

// apiVersion is sent on every request; the planner API versions by header.
const apiVersion = "2022-06-28"

// queryPageSize bounds one page of database query results.
const queryPageSize = 100

// Client is the planner API client. It operates on a single tasks database.
type Client struct {
	rc         *rest.Client
	databaseID string
	logger     *slog.Logger
}

// NewClient creates a planner client for the given database.
func NewClient(baseURL, token, databaseID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	rc := rest.NewClient(baseURL, token, httpClient, logger)
	rc.SetHeader("API-Version", apiVersion)

	return &Client{
		rc:         rc,
		databaseID: databaseID,
		logger:     logger,
	}
}

// GetPage fetches a single page by id.
// Returns rest.ErrNotFound (wrapped) when the page does not exist.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.rc.DoJSON(ctx, http.MethodGet, "/pages/"+pageID, nil, &page); err != nil {
		return nil, fmt.Errorf("planner: get page %s: %w", pageID, err)
	}

	return &page, nil
}

// UpdatePage patches the given properties on a page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) (*Page, error) {
	body := map[string]any{"properties": properties}

	var page Page

	if err := c.patch(ctx, "/pages/"+pageID, body, &page); err != nil {
		return nil, fmt.Errorf("planner: update page %s: %w", pageID, err)
	}

	return &page, nil
}

// ArchivePage archives (soft-deletes) a page.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	body := map[string]any{"archived": true}

	if err := c.patch(ctx, "/pages/"+pageID, body, nil); err != nil {
		return fmt.Errorf("planner: archive page %s: %w", pageID, err)
	}

	return nil
}

// QueryChangedSince returns all pages in the tasks database edited strictly
// after the given time, following pagination.
func (c *Client) QueryChangedSince(ctx context.Context, since time.Time) ([]Page, error) {
	filter := andFilter{And: []any{
		timestampFilter{
			Timestamp:      "last_edited_time",
			LastEditedTime: &afterCondition{After: since.UTC().Format(time.RFC3339)},
		},
	}}

	pages, err := c.queryAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("planner: query changed since %s: %w", since.Format(time.RFC3339), err)
	}

	c.logger.Debug("queried changed pages",
		slog.Time("since", since), slog.Int("count", len(pages)))

	return pages, nil
}

// QueryChildren returns all pages whose parentProperty relation contains
// parentID. When excludeCompleted is set, pages whose statusProperty equals
// doneValue are filtered out server-side.
func (c *Client) QueryChildren(
	ctx context.Context,
	parentProperty, parentID string,
	statusProperty, doneValue string,
	excludeCompleted bool,
) ([]Page, error) {
	conditions := []any{
		relationFilter{
			Property: parentProperty,
			Relation: relationCondition{Contains: parentID},
		},
	}

	if excludeCompleted && statusProperty != "" {
		conditions = append(conditions, statusFilter{
			Property: statusProperty,
			Status:   equalsCondition{DoesNotEqual: doneValue},
		})
	}

	pages, err := c.queryAll(ctx, andFilter{And: conditions})
	if err != nil {
		return nil, fmt.Errorf("planner: query children of %s: %w", parentID, err)
	}

	return pages, nil
}

// queryAll runs a database query, following cursors until exhausted.
func (c *Client) queryAll(ctx context.Context, filter any) ([]Page, error) {
	var (
		pages  []Page
		cursor string
	)

	for {
		req := queryRequest{Filter: filter, StartCursor: cursor, PageSize: queryPageSize}

		var resp queryResponse
		if err := c.rc.PostJSON(ctx, "/databases/"+c.databaseID+"/query", req, &resp); err != nil {
			return nil, err
		}

		pages = append(pages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}

		cursor = resp.NextCursor
	}
}

// patch issues a PATCH request with a JSON body.
func (c *Client) patch(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	return c.rc.DoJSON(ctx, http.MethodPatch, path, body, out)
}
