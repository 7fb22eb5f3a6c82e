// Package flow implements the flow-tracking pipeline: recording every
// pipeline checkpoint, tool invocation, and prompt-guard decision as a node
// in a per-session event tree, archiving that tree to durable storage on
// session end, and fanning live events out to subscribed admin observers.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one node in a session's flow-event tree. Nodes are NOT
// pointer-linked; ParentID is a foreign key into the same session's event
// list, reconstructed into a tree only when read.
type Event struct {
	ID        string                 `json:"id"`
	ParentID  string                 `json:"parent_id,omitempty"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Store is the durable sink flow event trees are archived to on session
// end. Implemented by internal/db.Store.
type Store interface {
	ArchiveFlow(ctx context.Context, sessionID, userID string, events []Event) error
}

// Tracker records flow events in memory per session, emits them to any
// subscribed broadcaster, and archives the full tree to the durable store
// once a session concludes.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string][]Event
	roots    map[string]string // sessionID -> first event id (tree root)

	store       Store
	broadcaster *Broadcaster
	monitoring  *MonitoringSet
	logger      *zap.Logger
}

// NewTracker creates a Tracker. store may be nil in tests that don't
// exercise archival; broadcaster may be nil when no admin observers exist.
// monitoring gates which users' events actually reach the broadcaster — a
// non-monitored user's messages must still produce a durable archive record
// but zero live publications (spec testable property 6). A nil monitoring
// set publishes every event, matching the zero-value "no gating configured"
// behavior used by tests that don't exercise monitoring.
func NewTracker(store Store, broadcaster *Broadcaster, monitoring *MonitoringSet, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sessions:    make(map[string][]Event),
		roots:       make(map[string]string),
		store:       store,
		broadcaster: broadcaster,
		monitoring:  monitoring,
		logger:      logger,
	}
}

// Record appends a new flow event to sessionID's event list. If parentID is
// empty and this is the session's first event, the new event's own id
// becomes the tree root as the spec requires ("a tree rooted at the first
// event per session").
func (t *Tracker) Record(sessionID, userID, kind string, payload map[string]interface{}, ts time.Time) Event {
	t.mu.Lock()
	id := uuid.NewString()
	parent := t.roots[sessionID]
	if parent == "" {
		t.roots[sessionID] = id
		parent = "" // the root event itself carries no parent
	}
	ev := Event{
		ID:        id,
		ParentID:  parent,
		SessionID: sessionID,
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: ts,
	}
	t.sessions[sessionID] = append(t.sessions[sessionID], ev)
	t.mu.Unlock()

	if t.broadcaster != nil && (t.monitoring == nil || t.monitoring.IsMonitored(userID)) {
		t.broadcaster.Publish(ev)
	}
	return ev
}

// Events returns a session's recorded events so far, in recorded order.
func (t *Tracker) Events(sessionID string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.sessions[sessionID]))
	copy(out, t.sessions[sessionID])
	return out
}

// Archive persists a session's full event tree to the durable store and
// drops it from memory. Archive failure is logged and NOT retried: the
// in-memory copy is still discarded so a retry storm can never build up
// unbounded memory (spec decision: log-only on archive failure).
func (t *Tracker) Archive(ctx context.Context, sessionID, userID string) {
	t.mu.Lock()
	events := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	delete(t.roots, sessionID)
	t.mu.Unlock()

	if len(events) == 0 || t.store == nil {
		return
	}

	if err := t.store.ArchiveFlow(ctx, sessionID, userID, events); err != nil {
		t.logger.Error("flow archive failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
