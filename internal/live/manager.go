// Package live serves interviews over a WebSocket channel.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/math-interviewer/internal/metrics"
)

// SessionManager tracks the live connection attached to each interview
// session. A session has at most one connection; a newer one replaces it.
type SessionManager struct {
	mu      sync.RWMutex
	active  map[string]*websocket.Conn
	metrics *metrics.Metrics
}

// NewSessionManager creates a new session manager. m may be nil.
func NewSessionManager(m *metrics.Metrics) *SessionManager {
	return &SessionManager{
		active:  make(map[string]*websocket.Conn),
		metrics: m,
	}
}

func (m *SessionManager) lookup(sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

func (m *SessionManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register attaches conn to sessionID, closing any connection it replaces.
func (m *SessionManager) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	existing, exists := m.active[sessionID]
	m.active[sessionID] = conn
	n := len(m.active)
	m.mu.Unlock()
	m.metrics.SetLiveConnections(n)

	if exists && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "session opened elsewhere")
	}
	slog.Info("Live session registered", "session_id", sessionID)
}

// Unregister detaches conn from sessionID if it is still the current one.
func (m *SessionManager) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[sessionID]; exists && current == conn {
		delete(m.active, sessionID)
		m.metrics.SetLiveConnections(len(m.active))
		slog.Info("Live session unregistered", "session_id", sessionID)
	}
}

// Rebind moves conn from oldID to newID after a reset.
func (m *SessionManager) Rebind(oldID, newID string, conn *websocket.Conn) {
	m.Unregister(oldID, conn)
	m.Register(newID, conn)
}

// CloseAll closes every attached connection. It is used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	conns := m.active
	m.active = make(map[string]*websocket.Conn)
	m.mu.Unlock()
	m.metrics.SetLiveConnections(0)

	for sid, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		slog.Info("Live session closed", "session_id", sid)
	}
}
