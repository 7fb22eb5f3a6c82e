package flow

import (
	"sync"

	"go.uber.org/zap"
)

// observerQueueSize bounds each admin observer's pending-event queue. A slow
// or stuck observer drops events rather than blocking the tracker.
const observerQueueSize = 256

// observer is one subscribed admin connection.
type observer struct {
	id      string
	predicate func(Event) bool
	ch      chan Event
}

// Broadcaster fans recorded flow events out to subscribed admin observer
// sockets, each filtered by its own subscription predicate (e.g. "events
// for user X", "events for session Y").
type Broadcaster struct {
	mu        sync.RWMutex
	observers map[string]*observer
	logger    *zap.Logger

	dropped map[string]int64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		observers: make(map[string]*observer),
		dropped:   make(map[string]int64),
		logger:    logger,
	}
}

// Subscribe registers a new observer with the given id and predicate,
// returning a channel of matching events. Call Unsubscribe when the
// observer's connection closes.
func (b *Broadcaster) Subscribe(id string, predicate func(Event) bool) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, observerQueueSize)
	b.observers[id] = &observer{id: id, predicate: predicate, ch: ch}
	return ch
}

// Unsubscribe removes an observer and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.observers[id]; ok {
		close(o.ch)
		delete(b.observers, id)
	}
}

// Publish fans ev out to every observer whose predicate matches. A full
// observer queue drops the event (non-blocking send) rather than stalling
// the flow tracker for every other session.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, o := range b.observers {
		if o.predicate != nil && !o.predicate(ev) {
			continue
		}
		select {
		case o.ch <- ev:
		default:
			b.dropped[o.id]++
			b.logger.Warn("admin observer queue full, dropping flow event",
				zap.String("observer_id", o.id),
				zap.String("session_id", ev.SessionID),
			)
		}
	}
}

// ByUser is a convenience predicate matching events for one user.
func ByUser(userID string) func(Event) bool {
	return func(ev Event) bool { return ev.UserID == userID }
}

// BySession is a convenience predicate matching events for one session.
func BySession(sessionID string) func(Event) bool {
	return func(ev Event) bool { return ev.SessionID == sessionID }
}
