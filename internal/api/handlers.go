// Package api provides HTTP handlers for NudgePipe nudge endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// orchestrateRequest is the body of POST /nudges/orchestrate.
type orchestrateRequest struct {
	UserID     string              `json:"user_id"`
	Candidates models.CandidateSet `json:"candidates"`
}

func (s *Server) orchestrateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.orchestrateHandler: processing orchestrate request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.orchestrateHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.orchestrateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	selected := s.orch.Orchestrate(r.Context(), req.UserID, req.Candidates)
	if selected == nil {
		slog.Debug("Server.orchestrateHandler: no nudge selected", "userID", req.UserID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("No nudge selected", nil))
		return
	}
	slog.Info("Server.orchestrateHandler: nudge selected", "userID", req.UserID, "kind", selected.Kind)
	writeJSONResponse(w, http.StatusOK, models.Success(selected))
}

// nudgeResponseRequest is the body of POST /nudges/response.
type nudgeResponseRequest struct {
	UserID   string                   `json:"user_id"`
	Kind     models.NudgeKind         `json:"kind"`
	Response models.NudgeResponseType `json:"response"`
}

func (s *Server) nudgeResponseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.nudgeResponseHandler: processing response request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req nudgeResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.nudgeResponseHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	if !models.IsValidNudgeKind(req.Kind) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidNudgeKind.Error()))
		return
	}
	if !models.IsValidNudgeResponseType(req.Response) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidResponseType.Error()))
		return
	}

	if !s.orch.RecordResponse(r.Context(), req.UserID, req.Kind, req.Response) {
		// Telemetry writes are best-effort; the caller still gets a 2xx.
		writeJSONResponse(w, http.StatusOK, models.Degraded("Response not persisted"))
		return
	}
	slog.Info("Server.nudgeResponseHandler: response recorded", "userID", req.UserID, "kind", req.Kind, "response", req.Response)
	writeJSONResponse(w, http.StatusCreated, models.Recorded())
}

// nudgeResetRequest is the body of POST /nudges/reset.
type nudgeResetRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) nudgeResetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.nudgeResetHandler: processing reset request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req nudgeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.nudgeResetHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	if !s.orch.ResetCooldowns(r.Context(), req.UserID) {
		writeJSONResponse(w, http.StatusOK, models.Degraded("Cooldown reset not persisted"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Cooldowns reset", nil))
}

// insightQueueRequest is the body of POST /insights/queue. The queue document
// is stored verbatim; validation happens lazily at session start.
type insightQueueRequest struct {
	UserID string          `json:"user_id"`
	Queue  json.RawMessage `json:"queue"`
}

func (s *Server) insightQueueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.insightQueueHandler: processing queue upload", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req insightQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.insightQueueHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	if len(req.Queue) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: queue"))
		return
	}

	if err := s.st.SaveInsightQueue(req.UserID, req.Queue); err != nil {
		slog.Error("Server.insightQueueHandler: failed to store queue", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store insight queue"))
		return
	}
	slog.Info("Server.insightQueueHandler: queue stored", "userID", req.UserID, "bytes", len(req.Queue))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Insight queue stored", nil))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"active_sessions": s.sessions.ActiveSessions(),
		"agent_available": s.agent != nil,
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}
