package promptguard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScorerClient performs the out-of-process classification call. It is the
// only part of the mediator that talks to the actual external scorer.
type ScorerClient interface {
	Classify(ctx context.Context, req Request) (Verdict, error)
}

type reply struct {
	id      string
	verdict Verdict
	err     error
}

// Mediator decouples the chat engine from the scorer's actual round-trip
// latency: Classify publishes a request and blocks on a reply channel
// keyed by request id, bounded by a timeout. A single reply-pump
// goroutine demultiplexes scorer replies onto the matching caller's
// future. On timeout the policy is fail-open.
type Mediator struct {
	client  ScorerClient
	timeout time.Duration
	logger  *zap.Logger

	pending    chan pendingRegistration
	replies    chan reply
	unregister chan string
	done       chan struct{}
}

type pendingRegistration struct {
	id string
	ch chan reply
}

// NewMediator starts the mediator's reply-pump goroutine.
func NewMediator(client ScorerClient, timeout time.Duration, logger *zap.Logger) *Mediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mediator{
		client:     client,
		timeout:    timeout,
		logger:     logger,
		pending:    make(chan pendingRegistration),
		replies:    make(chan reply, 256),
		unregister: make(chan string, 256),
		done:       make(chan struct{}),
	}
	go m.pump()
	return m
}

// pump is the single goroutine that owns the futures map, avoiding a
// mutex on the hot classify path.
func (m *Mediator) pump() {
	waiting := make(map[string]chan reply)
	for {
		select {
		case reg := <-m.pending:
			waiting[reg.id] = reg.ch
		case r := <-m.replies:
			if ch, ok := waiting[r.id]; ok {
				delete(waiting, r.id)
				ch <- r
			}
		case id := <-m.unregister:
			delete(waiting, id)
		case <-m.done:
			return
		}
	}
}

// Stop terminates the reply-pump goroutine.
func (m *Mediator) Stop() {
	close(m.done)
}

// Classify submits a classification request and awaits its reply, keyed
// by request id, bounded by the mediator's timeout. On timeout or scorer
// error, Classify fails open: {Safe: true}.
func (m *Mediator) Classify(ctx context.Context, userID, message string) Verdict {
	req := Request{ID: uuid.NewString(), UserID: userID, Message: message}

	ch := make(chan reply, 1)
	m.pending <- pendingRegistration{id: req.ID, ch: ch}

	go func() {
		verdict, err := m.client.Classify(ctx, req)
		m.replies <- reply{id: req.ID, verdict: verdict, err: err}
	}()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			m.logger.Warn("prompt guard scorer error, failing open",
				zap.String("request_id", req.ID), zap.Error(r.err))
			return Verdict{Safe: true, Reason: "scorer_error"}
		}
		return r.verdict
	case <-timer.C:
		m.unregister <- req.ID
		m.logger.Warn("prompt guard timeout, failing open", zap.String("request_id", req.ID))
		return Verdict{Safe: true, Reason: "timeout"}
	case <-ctx.Done():
		m.unregister <- req.ID
		return Verdict{Safe: true, Reason: "cancelled"}
	}
}
