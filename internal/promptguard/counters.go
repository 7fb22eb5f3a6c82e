package promptguard

import (
	"sync"
	"time"
)

// Counters tracks each user's running unsafe-verdict count, scoped by the
// configured window. WindowMessage never accumulates (every message is
// its own window); WindowSession accumulates per session id; WindowDay
// accumulates per calendar day (UTC) per user, surviving across sessions.
type Counters struct {
	window Window

	mu        sync.Mutex
	bySession map[string]int
	byDay     map[string]map[string]int
}

// NewCounters creates a counter set scoped to the given window.
func NewCounters(window Window) *Counters {
	return &Counters{
		window:    window,
		bySession: make(map[string]int),
		byDay:     make(map[string]map[string]int),
	}
}

// Increment records one more unsafe verdict for userID/sessionID at time
// now, returning the new running count for the active window.
func (c *Counters) Increment(userID, sessionID string, now time.Time) int {
	switch c.window {
	case WindowSession:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bySession[sessionID]++
		return c.bySession[sessionID]
	case WindowDay:
		day := now.UTC().Format("2006-01-02")
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.byDay[day] == nil {
			c.byDay[day] = make(map[string]int)
		}
		c.byDay[day][userID]++
		return c.byDay[day][userID]
	default: // WindowMessage
		return 1
	}
}

// EndSession discards the session-scoped counter once a session ends, so
// memory does not grow unbounded across a long-lived connection.
func (c *Counters) EndSession(sessionID string) {
	if c.window != WindowSession {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bySession, sessionID)
}

// Decide maps a running unsafe-verdict count onto the escalation ladder:
// below WarnAt is warned only, at/above WarnAt is warned and refused,
// at/above BlockAt blocks the user outright.
func Decide(count int, p Policy) Action {
	switch {
	case count >= p.BlockAt:
		return ActionBlockUser
	case count >= p.WarnAt:
		return ActionBlockMessage
	default:
		return ActionWarn
	}
}
