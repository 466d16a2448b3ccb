// Package api provides HTTP handlers for NudgePipe session endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/insight"
	"github.com/BTreeMap/NudgePipe/internal/models"
)

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	UserID string `json:"user_id"`
}

// sessionCreatedResult is the result payload of POST /sessions.
type sessionCreatedResult struct {
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
	InsightCount int    `json:"insightCount"`
	SystemPrompt string `json:"systemPrompt"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSessionHandler: processing session create", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	inj := s.sessions.StartSession(r.Context(), req.UserID)
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionCreatedResult{
		SessionID:    inj.SessionID(),
		UserID:       inj.UserID(),
		InsightCount: len(inj.Insights()),
		SystemPrompt: inj.BuildSystemPrompt(),
	}))
}

// sessionsHandler routes /sessions/{id}/{op} to the per-session operations.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(path, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
		return
	}
	sessionID, op := segments[0], segments[1]

	inj, ok := s.sessions.Get(sessionID)
	if !ok {
		slog.Debug("Server.sessionsHandler: session not found", "sessionID", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	switch op {
	case "prompt":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.sessionPromptHandler(w, r, inj)
	case "gate":
		s.requirePost(w, r, inj, s.sessionGateHandler)
	case "mood":
		s.requirePost(w, r, inj, s.sessionMoodHandler)
	case "surfaced":
		s.requirePost(w, r, inj, s.sessionSurfacedHandler)
	case "explored":
		s.requirePost(w, r, inj, s.sessionExploredHandler)
	case "dismissed":
		s.requirePost(w, r, inj, s.sessionDismissedHandler)
	case "turn":
		s.requirePost(w, r, inj, s.sessionTurnHandler)
	case "end":
		s.requirePost(w, r, inj, s.sessionEndHandler)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
	}
}

// requirePost enforces the method before dispatching a session operation.
func (s *Server) requirePost(w http.ResponseWriter, r *http.Request, inj *insight.Injector, h func(http.ResponseWriter, *http.Request, *insight.Injector)) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h(w, r, inj)
}

// sessionPromptHandler handles GET /sessions/{id}/prompt.
func (s *Server) sessionPromptHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	prompt := inj.BuildSystemPrompt()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"prompt":       prompt,
		"insightCount": len(inj.Insights()),
	}))
}

// gateRequest is the body of POST /sessions/{id}/gate.
type gateRequest struct {
	InsightID string   `json:"insight_id"`
	MoodScore *float64 `json:"mood_score,omitempty"`
}

// gateResult reports both delivery gates for one insight.
type gateResult struct {
	CanSurface bool `json:"canSurface"`
	MoodGate   bool `json:"moodGate"`
}

func (s *Server) sessionGateHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionGateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	canSurface, moodGate, known := inj.GateFor(req.InsightID, req.MoodScore)
	if !known {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Insight not found in session queue"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(gateResult{CanSurface: canSurface, MoodGate: moodGate}))
}

// moodRequest is the body of POST /sessions/{id}/mood.
type moodRequest struct {
	Score float64 `json:"score"`
}

func (s *Server) sessionMoodHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionMoodHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	updated := inj.Mood().Observe(req.Score, time.Now())
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"updated": updated,
		"score":   inj.Mood().Current(),
	}))
}

// surfacedRequest is the body of POST /sessions/{id}/surfaced.
type surfacedRequest struct {
	InsightID string                `json:"insight_id"`
	Timing    models.DeliveryTiming `json:"timing"`
	MoodScore *float64              `json:"mood_score,omitempty"`
}

func (s *Server) sessionSurfacedHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	var req surfacedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionSurfacedHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if _, ok := inj.InsightByID(req.InsightID); !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Insight not found in session queue"))
		return
	}
	if !inj.CanSurfaceInsight() {
		writeJSONResponse(w, http.StatusConflict, models.Error("Per-session insight cap reached"))
		return
	}
	if !models.IsValidDeliveryTiming(req.Timing) {
		req.Timing = models.TimingNaturalPause
	}

	inj.MarkSurfaced(req.InsightID, req.Timing, req.MoodScore)
	slog.Info("Server.sessionSurfacedHandler: insight surfaced", "sessionID", inj.SessionID(), "insightID", req.InsightID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded())
}

// exploredRequest is the body of POST /sessions/{id}/explored.
type exploredRequest struct {
	InsightID        string `json:"insight_id"`
	ExplorationDepth int    `json:"exploration_depth"`
}

func (s *Server) sessionExploredHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	var req exploredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionExploredHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	inj.MarkExplored(req.InsightID, req.ExplorationDepth)
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

// dismissedRequest is the body of POST /sessions/{id}/dismissed.
type dismissedRequest struct {
	InsightID string `json:"insight_id"`
}

func (s *Server) sessionDismissedHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	var req dismissedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionDismissedHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	inj.MarkDismissed(req.InsightID)
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

// turnRequest is the body of POST /sessions/{id}/turn.
type turnRequest struct {
	Message string `json:"message"`
}

func (s *Server) sessionTurnHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	if s.agent == nil {
		slog.Warn("Server.sessionTurnHandler: GenAI agent not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("GenAI agent not configured"))
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionTurnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: message"))
		return
	}

	reply, err := s.agent.GenerateTurn(r.Context(), inj.BuildSystemPrompt(), req.Message)
	if err != nil {
		slog.Error("Server.sessionTurnHandler: turn generation failed", "error", err, "sessionID", inj.SessionID())
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to generate conversation turn"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"reply": reply}))
}

// sessionEndHandler handles POST /sessions/{id}/end.
func (s *Server) sessionEndHandler(w http.ResponseWriter, r *http.Request, inj *insight.Injector) {
	if !s.sessions.EndSession(r.Context(), inj.SessionID()) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	slog.Info("Server.sessionEndHandler: session ended", "sessionID", inj.SessionID())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session ended", nil))
}
