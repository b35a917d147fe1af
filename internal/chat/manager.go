// Package chat provides the realtime WebSocket chat endpoint.
package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks live WebSocket connections per survey session.
type SessionManager struct {
	mu     sync.RWMutex
	active map[int64]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[int64]map[string]*websocket.Conn),
	}
}

// Count returns the number of live connections for a session.
func (m *SessionManager) Count(sessionID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[sessionID])
}

// Register adds a connection for a session.
func (m *SessionManager) Register(sessionID int64, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[sessionID]; !exists {
		m.active[sessionID] = make(map[string]*websocket.Conn)
	}
	m.active[sessionID][connID] = conn
	slog.Info("Chat connection registered", "session_id", sessionID, "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (m *SessionManager) Unregister(sessionID int64, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[sessionID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.active, sessionID)
			}
			slog.Info("Chat connection unregistered", "session_id", sessionID, "conn_id", connID)
		}
	}
}

// CloseSession terminates every live connection of a session.
func (m *SessionManager) CloseSession(sessionID int64) {
	m.mu.Lock()
	conns, ok := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}

	for connID, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Chat connection closed", "session_id", sessionID, "conn_id", connID)
	}
}
