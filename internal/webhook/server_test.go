package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbridge/taskbridge/internal/sync"
)

type queuedEvent struct {
	source, eventType, entityID string
}

type fakeQueue struct {
	mu     gosync.Mutex
	events []queuedEvent
	status sync.Status
}

func (q *fakeQueue) Enqueue(source, eventType, entityID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, queuedEvent{source: source, eventType: eventType, entityID: entityID})
}

func (q *fakeQueue) Status(context.Context) sync.Status {
	return q.status
}

func (q *fakeQueue) snapshot() []queuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]queuedEvent, len(q.events))
	copy(out, q.events)

	return out
}

const (
	testTrackerSecret = "tracker-secret"
	testPlannerSecret = "planner-secret"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeQueue) {
	t.Helper()

	queue := &fakeQueue{}
	s := NewServer("127.0.0.1:0", queue, testTrackerSecret, testPlannerSecret, nil)

	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)

	return srv, queue
}

func trackerSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func plannerSignature(secret string, body []byte) string {
	return "sha256=" + trackerSignature(secret, body)
}

func postTracker(t *testing.T, srv *httptest.Server, body []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/tracker", bytes.NewReader(body))
	require.NoError(t, err)

	if signature != "" {
		req.Header.Set("X-Tracker-Hmac-SHA256", signature)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func postPlanner(t *testing.T, srv *httptest.Server, body []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/planner", bytes.NewReader(body))
	require.NoError(t, err)

	if signature != "" {
		req.Header.Set("X-Planner-Signature", signature)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestHandleTracker_ValidSignatureEnqueues(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"event_name":"item:updated","event_data":{"id":"t-42"}}`)

	resp := postTracker(t, srv, body, trackerSignature(testTrackerSecret, body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := queue.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, queuedEvent{source: sync.SourceTracker, eventType: "item:updated", entityID: "t-42"}, events[0])
}

func TestHandleTracker_InvalidSignatureRejected(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"event_name":"item:updated","event_data":{"id":"t-42"}}`)

	resp := postTracker(t, srv, body, trackerSignature("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandleTracker_MissingSignatureRejected(t *testing.T) {
	srv, queue := newTestServer(t)

	resp := postTracker(t, srv, []byte(`{}`), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandleTracker_TamperedBodyRejected(t *testing.T) {
	srv, queue := newTestServer(t)

	signed := []byte(`{"event_name":"item:updated","event_data":{"id":"t-42"}}`)
	tampered := []byte(`{"event_name":"item:deleted","event_data":{"id":"t-42"}}`)

	resp := postTracker(t, srv, tampered, trackerSignature(testTrackerSecret, signed))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandleTracker_MalformedPayload(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{not json`)

	resp := postTracker(t, srv, body, trackerSignature(testTrackerSecret, body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandleTracker_MissingEntityID(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"event_name":"item:updated","event_data":{}}`)

	resp := postTracker(t, srv, body, trackerSignature(testTrackerSecret, body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandlePlanner_ValidSignatureEnqueues(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"type":"page.updated","entity":{"id":"p-7"}}`)

	resp := postPlanner(t, srv, body, plannerSignature(testPlannerSecret, body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := queue.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, queuedEvent{source: sync.SourcePlanner, eventType: "page.updated", entityID: "p-7"}, events[0])
}

func TestHandlePlanner_InvalidSignatureRejected(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"type":"page.updated","entity":{"id":"p-7"}}`)

	resp := postPlanner(t, srv, body, plannerSignature("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandlePlanner_NoSecretSkipsVerification(t *testing.T) {
	queue := &fakeQueue{}
	s := NewServer("127.0.0.1:0", queue, testTrackerSecret, "", nil)

	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	body := []byte(`{"type":"page.updated","entity":{"id":"p-7"}}`)

	resp := postPlanner(t, srv, body, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, queue.snapshot(), 1)
}

func TestHandlePlanner_VerificationChallenge(t *testing.T) {
	srv, queue := newTestServer(t)

	// The challenge arrives before the secret is established, so it is
	// answered without a signature.
	body := []byte(`{"verification_token":"tok-123"}`)

	resp := postPlanner(t, srv, body, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var echo map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	assert.Equal(t, "tok-123", echo["verification_token"])

	// A challenge is not a change event.
	assert.Empty(t, queue.snapshot())
}

func TestHandlePlanner_MissingEntityID(t *testing.T) {
	srv, queue := newTestServer(t)

	body := []byte(`{"type":"page.updated","entity":{}}`)

	resp := postPlanner(t, srv, body, plannerSignature(testPlannerSecret, body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestHandleStatus(t *testing.T) {
	srv, queue := newTestServer(t)

	queue.status = sync.Status{
		Running:    true,
		QueueLen:   3,
		StateCount: 12,
		Stats:      sync.Stats{Enqueued: 40, Processed: 37},
	}

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got sync.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.True(t, got.Running)
	assert.Equal(t, 3, got.QueueLen)
	assert.Equal(t, 12, got.StateCount)
	assert.Equal(t, int64(40), got.Stats.Enqueued)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, queue := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/webhooks/tracker")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Empty(t, queue.snapshot())
}
