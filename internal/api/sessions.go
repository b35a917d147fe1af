package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iamibadd/survey-agent/internal/agent"
	"github.com/iamibadd/survey-agent/internal/domain"
)

// SessionCloser terminates live connections attached to a session.
type SessionCloser interface {
	CloseSession(sessionID int64)
}

// SessionHandler serves the survey session endpoints.
type SessionHandler struct {
	svc     agent.SessionService
	closer  SessionCloser
	limiter func(http.Handler) http.Handler
}

// NewSessionHandler creates a SessionHandler. limiter wraps the routes that
// invoke the language model and may be nil. closer may be nil.
func NewSessionHandler(svc agent.SessionService, closer SessionCloser, limiter func(http.Handler) http.Handler) *SessionHandler {
	if limiter == nil {
		limiter = func(next http.Handler) http.Handler { return next }
	}
	return &SessionHandler{svc: svc, closer: closer, limiter: limiter}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.With(h.limiter).Post("/start-session", h.StartSession)
	r.With(h.limiter).Post("/send-message", h.SendMessage)

	r.Get("/interests/{sessionId}", h.GetInterests)
	r.Put("/interests/{sessionId}", h.PutInterests)
	r.Post("/pause/{sessionId}", h.Pause)
	r.Post("/resume/{sessionId}", h.Resume)
	r.Get("/session/{sessionId}", h.GetSession)
	r.Delete("/session/{sessionId}", h.DeleteSession)
	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{sessionId}/messages", h.GetMessages)
}

type startSessionRequest struct {
	Prompt  string `json:"prompt"`
	Consent bool   `json:"consent"`
}

type sendMessageRequest struct {
	SessionID int64  `json:"sessionId"`
	Message   string `json:"message"`
}

type sessionView struct {
	ID      int64 `json:"id"`
	Paused  bool  `json:"paused"`
	Consent bool  `json:"consent"`
	Deleted bool  `json:"deleted"`
}

// StartSession creates a session and returns the opening message.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Start(r.Context(), agent.StartRequest{Prompt: req.Prompt, Consent: req.Consent})
	if err != nil {
		if result.Session != nil && errors.Is(err, agent.ErrModelUnavailable) {
			JSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":     "failed to generate the opening message",
				"sessionId": result.Session.ID,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":      result.Session.ID,
		"initialMessage": result.InitialMessage,
	})
}

// SendMessage runs one conversation turn.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID <= 0 {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	result, err := h.svc.Send(r.Context(), req.SessionID, agent.UserInput{Text: req.Message})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"agentMessage":      result.AgentMessage,
		"inferenceDegraded": result.InferenceDegraded,
	})
}

// GetInterests returns the interest set of a session.
func (h *SessionHandler) GetInterests(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	interests, err := h.svc.Interests(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(interests))
}

// PutInterests replaces the interest set of a session.
func (h *SessionHandler) PutInterests(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var interests []domain.Interest
	if err := decodeJSON(w, r, &interests); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ReplaceInterests(r.Context(), id, interests); err != nil {
		writeServiceError(w, err)
		return
	}

	h.GetInterests(w, r)
}

// Pause stops a session from accepting messages.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume lets a paused session accept messages again.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *SessionHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	status := "resumed"
	if paused {
		status = "paused"
		err = h.svc.Pause(r.Context(), id)
	} else {
		err = h.svc.Resume(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": status})
}

// GetSession returns the state of a live session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSON(w, http.StatusOK, sessionView{
		ID:      session.ID,
		Paused:  session.Paused,
		Consent: session.Consent,
		Deleted: session.Deleted,
	})
}

// DeleteSession soft-deletes a session and drops its live connections.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	if h.closer != nil {
		h.closer.CloseSession(id)
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListSessions returns live sessions, newest first.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(sessions))
}

// GetMessages returns the last N messages of a session for chat replay.
func (h *SessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := agent.DefaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	messages, err := h.svc.Messages(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"messages":   nonNil(messages),
	})
}

// writeServiceError maps agent errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, agent.ErrSessionUnavailable):
		Error(w, http.StatusNotFound, "Session not found or paused")
	case errors.Is(err, agent.ErrAlreadyDeleted):
		Error(w, http.StatusNotFound, "Session not found or already deleted")
	case errors.Is(err, agent.ErrModelUnavailable):
		Error(w, http.StatusBadGateway, "language model unavailable")
	default:
		slog.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
