package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kubilitics/gatewayd/internal/flow"
	"go.uber.org/zap"
)

// observeSubscribeFrame is the admin observer's initial subscription
// request: filter by user id and/or a set of event kinds.
type observeSubscribeFrame struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe" | "ping"
	Filter struct {
		UserID int      `json:"user_id"`
		Kinds  []string `json:"kinds"`
	} `json:"filter"`
}

// observeEventFrame is one flow.Event (or synthetic mcp_status_change)
// forwarded to a subscribed admin observer.
type observeEventFrame struct {
	Kind      string                 `json:"kind"`
	SessionID string                 `json:"session_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// handleAdminObserve serves the admin observer WebSocket: a long-lived
// connection that subscribes to flow.Broadcaster events for one user
// (optionally narrowed to specific event kinds) and forwards them, plus
// periodic mcp_status_change events derived from the coordinator's
// breaker snapshot.
func (s *Server) handleAdminObserve(w http.ResponseWriter, r *http.Request) {
	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("admin observer upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	observerID := uuid.NewString()
	var sub observeSubscribeFrame
	if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
		_ = conn.WriteJSON(map[string]string{"error": "expected subscribe frame"})
		return
	}

	kinds := make(map[string]bool, len(sub.Filter.Kinds))
	for _, k := range sub.Filter.Kinds {
		kinds[k] = true
	}
	userID := ""
	if sub.Filter.UserID != 0 {
		userID = strconv.Itoa(sub.Filter.UserID)
	}

	predicate := func(ev flow.Event) bool {
		if userID != "" && ev.UserID != userID {
			return false
		}
		if len(kinds) > 0 && !kinds[ev.Kind] {
			return false
		}
		return true
	}

	events := s.broadcaster.Subscribe(observerID, predicate)
	defer s.broadcaster.Unsubscribe(observerID)

	statusTicker := time.NewTicker(s.mcpStatusInterval())
	defer statusTicker.Stop()

	oc := &wsConn{conn: conn}
	done := make(chan struct{})
	go s.drainObserverControlFrames(oc, done)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := oc.writeJSON(observeEventFrame{
				Kind:      ev.Kind,
				SessionID: ev.SessionID,
				UserID:    ev.UserID,
				Payload:   ev.Payload,
				Timestamp: ev.Timestamp,
			}); err != nil {
				return
			}
		case <-statusTicker.C:
			snapshot := s.coordinator.BreakerSnapshot()
			payload := make(map[string]interface{}, len(snapshot))
			for id, state := range snapshot {
				payload[id] = string(state)
			}
			if err := oc.writeJSON(observeEventFrame{
				Kind:      "mcp_status_change",
				Payload:   payload,
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// drainObserverControlFrames reads ping/unsubscribe control frames from the
// observer connection until it closes, so the write loop above learns
// promptly when the client goes away. Writes go through oc so a "pong"
// reply never races the event-forwarding loop's writes to the same
// connection.
func (s *Server) drainObserverControlFrames(oc *wsConn, done chan<- struct{}) {
	defer close(done)
	for {
		var frame observeSubscribeFrame
		if err := oc.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Action {
		case "ping":
			_ = oc.writeJSON(map[string]string{"action": "pong"})
		case "unsubscribe":
			return
		}
	}
}

func (s *Server) mcpStatusInterval() time.Duration {
	secs := s.cfg.Coordinator.HealthIntervalSeconds
	if secs < 1 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
