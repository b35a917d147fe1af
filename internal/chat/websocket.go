package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/iamibadd/survey-agent/internal/agent"
	"github.com/iamibadd/survey-agent/internal/domain"
)

const writeTimeout = 10 * time.Second

// Frame types exchanged over the socket.
const (
	FrameMessage   = "message"
	FrameReply     = "reply"
	FrameInterests = "interests"
	FrameError     = "error"
)

// ClientFrame is a message sent by the browser.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ServerFrame is a message pushed to the browser.
type ServerFrame struct {
	Type      string            `json:"type"`
	Content   string            `json:"content,omitempty"`
	Interests []domain.Interest `json:"interests,omitempty"`
}

// WebSocketHandler runs conversation turns over a WebSocket.
type WebSocketHandler struct {
	svc            agent.SessionService
	sm             *SessionManager
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(svc agent.SessionService, sm *SessionManager, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		svc:            svc,
		sm:             sm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionId"), 10, 64)
	if err != nil || sessionID <= 0 {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	session, err := h.svc.Get(r.Context(), sessionID)
	if errors.Is(err, agent.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to load session for chat", "session_id", sessionID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	connID := uuid.NewString()
	h.sm.Register(session.ID, connID, ws)
	defer h.sm.Unregister(session.ID, connID, ws)

	h.readLoop(r.Context(), ws, session.ID, connID)
	slog.Info("Chat connection ended", "session_id", session.ID, "conn_id", connID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID int64, connID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID, "conn_id", connID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "session_id", sessionID, "conn_id", connID)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != FrameMessage {
			if err := h.writeJSON(ctx, ws, ServerFrame{Type: FrameError, Content: "invalid message format"}); err != nil {
				return
			}
			continue
		}

		result, err := h.svc.Send(ctx, sessionID, agent.UserInput{Text: frame.Content})
		if err != nil {
			if err := h.writeJSON(ctx, ws, ServerFrame{Type: FrameError, Content: frameError(err)}); err != nil {
				return
			}
			continue
		}

		if err := h.writeJSON(ctx, ws, ServerFrame{Type: FrameReply, Content: result.AgentMessage}); err != nil {
			return
		}
		if err := h.writeJSON(ctx, ws, ServerFrame{Type: FrameInterests, Interests: result.Interests}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write failed", "error", err)
		return err
	}
	return nil
}

func frameError(err error) string {
	switch {
	case errors.Is(err, agent.ErrInvalidInput):
		return "message is required"
	case errors.Is(err, agent.ErrSessionUnavailable):
		return "session not found or paused"
	case errors.Is(err, agent.ErrModelUnavailable):
		return "language model unavailable"
	default:
		slog.Error("Chat turn failed", "error", err)
		return "internal server error"
	}
}
