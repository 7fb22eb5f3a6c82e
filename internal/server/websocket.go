package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kubilitics/gatewayd/internal/chat"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/identity"
	"go.uber.org/zap"
)

// heartbeatInterval is how often the server pings a /ws/chat connection to
// detect a dead client faster than the underlying TCP timeout would.
const heartbeatInterval = 30 * time.Second

const (
	closeNormal       = 1000
	closeAuthDenied   = 1008
	closeInternalFail = 1011
)

func (s *Server) newUpgrader() websocket.Upgrader {
	allowed := s.cfg.Server.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, a := range allowed {
				if a == "*" || a == origin {
					return true
				}
			}
			return false
		},
	}
}

// clientFrame is the one message shape a /ws/chat client ever sends.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// wireFrame is the envelope every server->client frame is marshaled into.
// Only the fields relevant to Type are populated.
type wireFrame struct {
	Type          string                 `json:"type"`
	Text          string                 `json:"text,omitempty"`
	MCP           string                 `json:"mcp,omitempty"`
	Tool          string                 `json:"tool,omitempty"`
	Status        string                 `json:"status,omitempty"`
	DurationMS    int64                  `json:"duration_ms,omitempty"`
	Usage         map[string]interface{} `json:"usage,omitempty"`
	AvailableMCPs []string               `json:"available_mcps,omitempty"`
	Result        *doneResult            `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Code          string                 `json:"code,omitempty"`
}

type doneResult struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// handleWebSocket serves /ws/chat: one session per connection, driven
// entirely by internal/chat.Engine. The connection's identity comes from
// the upstream gateway's trusted headers, never from a token this process
// validates itself.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	uc, err := identity.ExtractFromHeaders(r.Header)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	sess := s.engine.StartSession(sessionID, uc.UserID, uc.Role, s.cfg.LLM.Provider)
	llmAdapter := s.llmAdapterFor(uc.UserID, sessionID)

	wsc := &wsConn{conn: conn}
	closeCode := closeNormal
	success := true

	sink := chat.FrameSinkFunc(func(f chat.Frame) error {
		return wsc.writeFrame(s.frameToWire(f, sess))
	})

	available := make([]string, 0)
	for mcpID := range s.coordinator.ListTools(r.Context()) {
		available = append(available, mcpID)
	}
	_ = wsc.writeFrame(wireFrame{
		Type:          "welcome",
		Text:          "connected",
		Usage:         map[string]interface{}{"input_tokens": 0, "output_tokens": 0, "cost_usd": 0.0},
		AvailableMCPs: available,
	})

	ctx := identity.WithUserContext(r.Context(), uc)
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go s.heartbeat(heartbeatCtx, wsc)

readLoop:
	for {
		var cf clientFrame
		if err := conn.ReadJSON(&cf); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.String("session_id", sessionID), zap.Error(err))
			}
			break
		}
		if cf.Type != "message" {
			continue
		}

		msgErr := s.engine.HandleMessage(ctx, sess, llmAdapter, sink, cf.Text)
		if msgErr == nil {
			continue
		}

		switch gwerrors.KindOf(msgErr) {
		case gwerrors.AuthMissing:
			closeCode = closeAuthDenied
			success = false
			break readLoop
		case gwerrors.Internal:
			closeCode = closeInternalFail
			success = false
			break readLoop
		default:
			// Every other kind already produced an error/tool_result frame;
			// the connection stays open so the client can retry or recover.
		}
	}

	stopHeartbeat()
	s.engine.EndSession(context.Background(), sess, "websocket", success, "")
	_ = wsc.close(closeCode, "")
}

// wsConn serializes writes to a *websocket.Conn: gorilla/websocket forbids
// concurrent writers, and the heartbeat goroutine and the frame sink both
// write to the same connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeFrame(f wireFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(f)
}

// writeJSON serializes writes of any JSON-marshalable value, used by
// connections (like the admin observer socket) that carry more than one
// frame shape.
func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (w *wsConn) close(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
	return w.conn.Close()
}

func (s *Server) heartbeat(ctx context.Context, wsc *wsConn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsc.ping(); err != nil {
				return
			}
		}
	}
}

// frameToWire translates an engine chat.Frame into the spec's wire
// vocabulary. Tool frames split into "tool_call"/"tool_result" depending
// on the underlying ToolEvent phase; a "complete" frame is expanded into a
// "done" frame carrying the session's running token/cost totals.
func (s *Server) frameToWire(f chat.Frame, sess *chat.Session) wireFrame {
	switch f.Kind {
	case chat.FrameText:
		return wireFrame{Type: "token", Text: f.Text}
	case chat.FrameTool:
		if f.Tool == nil {
			return wireFrame{Type: "token"}
		}
		if f.Tool.Phase == "calling" {
			return wireFrame{Type: "tool_call", MCP: mcpFromToolName(f.Tool.ToolName), Tool: f.Tool.ToolName}
		}
		status := "ok"
		if f.Tool.Phase == "error" {
			status = "error"
		}
		return wireFrame{Type: "tool_result", MCP: mcpFromToolName(f.Tool.ToolName), Tool: f.Tool.ToolName, Status: status}
	case chat.FrameWarning:
		return wireFrame{Type: "token", Text: "[warning] " + f.Warning}
	case chat.FrameError:
		return wireFrame{Type: "error", Error: f.Err, Code: "turn_error"}
	case chat.FrameComplete:
		inputTokens, outputTokens, tools := sess.Usage()
		cost := s.costCalc.Calculate(sess.Provider, inputTokens, outputTokens, tools)
		return wireFrame{Type: "done", Result: &doneResult{Tokens: inputTokens + outputTokens, Cost: cost.TotalCostUSD}}
	default:
		return wireFrame{Type: "token", Text: f.Text}
	}
}

// mcpFromToolName best-effort derives an MCP id from a qualified tool
// name ("mcp_id.tool_name"); unqualified tool names report an empty MCP.
func mcpFromToolName(toolName string) string {
	if i := strings.IndexByte(toolName, '.'); i >= 0 {
		return toolName[:i]
	}
	return ""
}
