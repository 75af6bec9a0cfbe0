package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/math-interviewer/internal/api"
	"github.com/ashureev/math-interviewer/internal/identity"
	"github.com/ashureev/math-interviewer/internal/interview"
)

// Channel is the conversation-log channel name for live turns.
const Channel = "websocket"

// Message types exchanged over the socket.
const (
	TypeMessage       = "message"
	TypeStatus        = "status"
	TypeReport        = "report"
	TypeReset         = "reset"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeSession       = "session"
	TypeFragment      = "fragment"
	TypeTurn          = "turn"
	TypeReportRefused = "report_refused"
	TypeError         = "error"
)

// ClientMessage is sent by the browser.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerMessage is sent to the browser. Only the fields relevant to Type
// are set.
type ServerMessage struct {
	Type           string              `json:"type"`
	SessionID      string              `json:"session_id,omitempty"`
	Content        string              `json:"content,omitempty"`
	Transcript     []api.TurnView      `json:"transcript,omitempty"`
	Turn           *api.TurnResponse   `json:"turn,omitempty"`
	Status         *interview.Status   `json:"status,omitempty"`
	Report         *api.ReportResponse `json:"report,omitempty"`
	RemainingTurns int                 `json:"remaining_turns,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// WebSocketHandler runs an interview over a WebSocket connection.
type WebSocketHandler struct {
	interviews    api.Interviewer
	sm            *SessionManager
	allowedOrigin string
	isDev         bool
	readLimit     int64
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(interviews api.Interviewer, sm *SessionManager, allowedOrigin string, isDev bool, readLimit int64, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if readLimit <= 0 {
		readLimit = 1 << 20
	}
	return &WebSocketHandler{
		interviews:    interviews,
		sm:            sm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		readLimit:     readLimit,
		logger:        logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The session is
// named by identity.Middleware; without one a new session is started.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logger.Info("WebSocket connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	ws.SetReadLimit(h.readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx := interview.WithChannel(r.Context(), Channel)

	if sessionID == "" {
		s, err := h.interviews.Create(ctx)
		if err != nil {
			h.writeError(ctx, ws, err)
			return
		}
		sessionID = s.ID
	}
	if err := h.sendSession(ctx, ws, sessionID); err != nil {
		h.writeError(ctx, ws, err)
		return
	}

	h.sm.Register(sessionID, ws)
	defer func() { h.sm.Unregister(sessionID, ws) }()

	sessionID = h.inputLoop(ctx, ws, sessionID)
	h.logger.Info("Live session ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// inputLoop dispatches client messages until the connection closes and
// returns the session ID the connection ended on.
func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, sessionID string) string {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return sessionID
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(ctx, ws, ServerMessage{Type: TypeError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case TypeMessage:
			h.handleMessage(ctx, ws, sessionID, msg.Content)
		case TypeStatus:
			h.handleStatus(ctx, ws, sessionID)
		case TypeReport:
			h.handleReport(ctx, ws, sessionID)
		case TypeReset:
			sessionID = h.handleReset(ctx, ws, sessionID)
		case TypePing:
			h.send(ctx, ws, ServerMessage{Type: TypePong})
		default:
			h.send(ctx, ws, ServerMessage{Type: TypeError, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, ws *websocket.Conn, sessionID, content string) {
	if strings.TrimSpace(content) == "" {
		h.writeError(ctx, ws, interview.ErrEmptyMessage)
		return
	}
	result, err := h.interviews.Submit(ctx, sessionID, content, func(fragment string) {
		h.send(ctx, ws, ServerMessage{Type: TypeFragment, SessionID: sessionID, Content: fragment})
	})
	if err != nil {
		h.writeError(ctx, ws, err)
		return
	}
	turn := api.NewTurnResponse(result)
	h.send(ctx, ws, ServerMessage{Type: TypeTurn, SessionID: sessionID, Turn: &turn, Status: &result.Status})
}

func (h *WebSocketHandler) handleStatus(ctx context.Context, ws *websocket.Conn, sessionID string) {
	status, err := h.interviews.Status(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, ws, err)
		return
	}
	h.send(ctx, ws, ServerMessage{Type: TypeStatus, SessionID: sessionID, Status: &status})
}

func (h *WebSocketHandler) handleReport(ctx context.Context, ws *websocket.Conn, sessionID string) {
	outcome, err := h.interviews.RequestReport(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, ws, err)
		return
	}
	if outcome.Refused {
		h.send(ctx, ws, ServerMessage{
			Type:           TypeReportRefused,
			SessionID:      sessionID,
			RemainingTurns: outcome.RemainingTurns,
			Error:          "not enough conversation for a report",
		})
		return
	}
	rep := api.NewReportResponse(sessionID, outcome.Report)
	h.send(ctx, ws, ServerMessage{Type: TypeReport, SessionID: sessionID, Report: &rep})
}

func (h *WebSocketHandler) handleReset(ctx context.Context, ws *websocket.Conn, sessionID string) string {
	fresh, err := h.interviews.Reset(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, ws, err)
		return sessionID
	}
	h.sm.Rebind(sessionID, fresh.ID, ws)
	if err := h.sendSession(ctx, ws, fresh.ID); err != nil {
		h.writeError(ctx, ws, err)
	}
	return fresh.ID
}

func (h *WebSocketHandler) sendSession(ctx context.Context, ws *websocket.Conn, sessionID string) error {
	turns, err := h.interviews.Transcript(ctx, sessionID)
	if err != nil {
		return err
	}
	status, err := h.interviews.Status(ctx, sessionID)
	if err != nil {
		return err
	}
	views := make([]api.TurnView, len(turns))
	for i, t := range turns {
		views[i] = api.NewTurnView(t)
	}
	h.send(ctx, ws, ServerMessage{Type: TypeSession, SessionID: sessionID, Transcript: views, Status: &status})
	return nil
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, err error) {
	h.logger.Debug("Live request failed", "error", err)
	h.send(ctx, ws, ServerMessage{Type: TypeError, Error: err.Error()})
}

func (h *WebSocketHandler) send(ctx context.Context, ws *websocket.Conn, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("Failed to marshal live message", "type", msg.Type, "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
		h.logger.Debug("WebSocket write error", "type", msg.Type, "error", err)
	}
}
