package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/internal/workflow"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// SchedulingEngine is the slice of the workflow engine the HTTP layer needs.
type SchedulingEngine interface {
	StartSession(ctx context.Context) (*workflow.Reply, error)
	HandleMessage(ctx context.Context, sessionID, message string) (*workflow.Reply, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

var _ SchedulingEngine = (*workflow.Engine)(nil)

// SessionsHandler wires HTTP requests to the scheduling workflow.
type SessionsHandler struct {
	engine SchedulingEngine
	logger *logging.Logger
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(engine SchedulingEngine, logger *logging.Logger) *SessionsHandler {
	if engine == nil {
		panic("handlers: engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionsHandler{engine: engine, logger: logger}
}

// MessageRequest is the body of POST /api/v1/sessions/{id}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// Start handles POST /api/v1/sessions.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	reply, err := h.engine.StartSession(r.Context())
	if err != nil {
		h.logger.Error("failed to start session", "error", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, reply)
}

// Message handles POST /api/v1/sessions/{id}/messages.
func (h *SessionsHandler) Message(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	reply, err := h.engine.HandleMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to process message", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	s, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// HealthCheck handles GET /health.
func (h *SessionsHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SessionsHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
