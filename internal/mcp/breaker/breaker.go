// Package breaker implements a per-MCP circuit breaker guarding the
// coordinator from repeatedly dispatching to an unhealthy tool server.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State string

const (
	// Closed means requests pass through normally.
	Closed State = "closed"
	// Open means requests are rejected outright until the cooldown elapses.
	Open State = "open"
	// HalfOpen means a single trial request is allowed through to probe
	// recovery; success closes the breaker, failure reopens it.
	HalfOpen State = "half_open"
)

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from Closed to Open.
	FailureThreshold int
	// Cooldown is how long the breaker stays Open before allowing a
	// single HalfOpen trial.
	Cooldown time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a single MCP's circuit breaker state machine.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenInFlight bool
}

// New creates a breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call may proceed right now. When it returns true
// for a HalfOpen trial, the caller MUST report the outcome via Success or
// Failure so the trial slot is released.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		// Only one trial call in flight at a time.
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return false
}

// Success records a successful call outcome.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFail = 0
	b.halfOpenInFlight = false
	b.state = Closed
}

// Failure records a failed call outcome, tripping the breaker open when the
// consecutive-failure threshold is reached (or immediately, from HalfOpen).
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false

	if b.state == HalfOpen {
		b.trip()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFail = b.cfg.FailureThreshold
}

// State returns the current state for reporting/metrics.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry is a mutex-guarded set of per-MCP breakers, keyed by MCP id.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry using cfg for every breaker
// it lazily creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for mcpID, creating one on first use.
func (r *Registry) For(mcpID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[mcpID]
	if !ok {
		b = New(r.cfg)
		r.breakers[mcpID] = b
	}
	return b
}

// Snapshot returns the current state of every known breaker, for health
// reporting.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}
