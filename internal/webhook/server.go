// Package webhook implements the HTTP event receivers feeding the
// orchestrator queue. Handlers verify, enqueue, and return immediately;
// reconciliation never runs on a request goroutine.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskbridge/taskbridge/internal/sync"
)

// maxBodyBytes bounds webhook request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// Request timeouts for the receiver server.
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Queue is the orchestrator surface the receivers consume.
type Queue interface {
	Enqueue(source, eventType, entityID string)
	Status(ctx context.Context) sync.Status
}

// Server is the webhook receiver HTTP server.
type Server struct {
	queue         Queue
	trackerSecret string
	plannerSecret string
	logger        *slog.Logger

	httpServer *http.Server
}

// NewServer creates a webhook Server listening on addr.
func NewServer(addr string, queue Queue, trackerSecret, plannerSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		queue:         queue,
		trackerSecret: trackerSecret,
		plannerSecret: plannerSecret,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/tracker", s.handleTracker)
	mux.HandleFunc("POST /webhooks/planner", s.handlePlanner)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s
}

// Handler exposes the receiver mux, for serving through a test listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("webhook server listening", slog.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server shutdown: %w", err)
	}

	return nil
}

// trackerEvent is the tracker's webhook payload.
type trackerEvent struct {
	EventName string `json:"event_name"`
	EventData struct {
		ID string `json:"id"`
	} `json:"event_data"`
}

// handleTracker verifies the HMAC-SHA256 body signature and enqueues the
// event. Invalid signatures are rejected; malformed bodies are acknowledged
// with 400 so the tracker does not retry them forever.
func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !s.verifyTrackerSignature(body, r.Header.Get("X-Tracker-Hmac-SHA256")) {
		s.logger.Warn("tracker webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)

		return
	}

	var ev trackerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if ev.EventData.ID == "" {
		http.Error(w, "missing entity id", http.StatusBadRequest)
		return
	}

	s.queue.Enqueue(sync.SourceTracker, ev.EventName, ev.EventData.ID)
	w.WriteHeader(http.StatusOK)
}

// verifyTrackerSignature checks the base64 HMAC-SHA256 of the body in
// constant time.
func (s *Server) verifyTrackerSignature(body []byte, signature string) bool {
	if s.trackerSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.trackerSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// plannerEvent is the planner's webhook payload. The first delivery after
// subscribing carries only a verification token, which must be echoed back.
type plannerEvent struct {
	VerificationToken string `json:"verification_token"`
	Type              string `json:"type"`
	Entity            struct {
		ID string `json:"id"`
	} `json:"entity"`
}

// handlePlanner answers the subscription challenge and enqueues change
// events. The planner signs with its own token scheme; when a secret is
// configured, the same body HMAC check applies.
func (s *Server) handlePlanner(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var ev plannerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	// Subscription challenge: echo the token before any verification, since
	// the secret is not established until the challenge completes.
	if ev.VerificationToken != "" {
		s.logger.Info("answering planner verification challenge")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_token": ev.VerificationToken})

		return
	}

	if s.plannerSecret != "" && !s.verifyPlannerSignature(body, r.Header.Get("X-Planner-Signature")) {
		s.logger.Warn("planner webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)

		return
	}

	if ev.Entity.ID == "" {
		http.Error(w, "missing entity id", http.StatusBadRequest)
		return
	}

	s.queue.Enqueue(sync.SourcePlanner, ev.Type, ev.Entity.ID)
	w.WriteHeader(http.StatusOK)
}

// verifyPlannerSignature checks the planner's "sha256=<hex-free base64>"
// body HMAC in constant time.
func (s *Server) verifyPlannerSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.plannerSecret))
	mac.Write(body)
	expected := "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleStatus reports orchestrator liveness and statistics as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.queue.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("encoding status response failed", slog.String("error", err.Error()))
	}
}
