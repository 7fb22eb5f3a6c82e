package promptguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlockSetter struct {
	blocked map[string]string
}

func (f *fakeBlockSetter) BlockUser(_ context.Context, userID, reason string) error {
	f.blocked[userID] = reason
	return nil
}

func newUnsafeMediator(t *testing.T) *Mediator {
	t.Helper()
	m := NewMediator(fakeScorer{verdict: Verdict{Safe: false, Score: 0.9, Reason: "unsafe"}}, time.Second, nil)
	t.Cleanup(m.Stop)
	return m
}

func TestGuardSessionEscalationLadder(t *testing.T) {
	blocks := &fakeBlockSetter{blocked: map[string]string{}}
	guard := NewGuard(newUnsafeMediator(t), Policy{Window: WindowSession, WarnAt: 2, BlockAt: 3}, blocks, nil, nil)

	r1 := guard.Evaluate(context.Background(), "u1", "sess-1", "user", "msg1")
	assert.Equal(t, ActionWarn, r1.Action)
	assert.True(t, r1.Allowed)

	r2 := guard.Evaluate(context.Background(), "u1", "sess-1", "user", "msg2")
	assert.Equal(t, ActionBlockMessage, r2.Action)
	assert.False(t, r2.Allowed)

	r3 := guard.Evaluate(context.Background(), "u1", "sess-1", "user", "msg3")
	assert.Equal(t, ActionBlockUser, r3.Action)
	assert.False(t, r3.Allowed)
	require.Contains(t, blocks.blocked, "u1")
}

func TestGuardBypassRole(t *testing.T) {
	guard := NewGuard(newUnsafeMediator(t), Policy{Window: WindowSession, WarnAt: 1, BlockAt: 2}, nil, []string{"admin"}, nil)

	r := guard.Evaluate(context.Background(), "u1", "sess-1", "admin", "anything")
	assert.Equal(t, ActionNone, r.Action)
	assert.True(t, r.Allowed)
}

func TestGuardSafeMessageNeverEscalates(t *testing.T) {
	m := NewMediator(fakeScorer{verdict: Verdict{Safe: true}}, time.Second, nil)
	defer m.Stop()
	guard := NewGuard(m, Policy{Window: WindowSession, WarnAt: 1, BlockAt: 2}, nil, nil, nil)

	r := guard.Evaluate(context.Background(), "u1", "sess-1", "user", "hello")
	assert.Equal(t, ActionNone, r.Action)
	assert.True(t, r.Allowed)
}

func TestGuardSessionCountersAreIsolatedPerSession(t *testing.T) {
	guard := NewGuard(newUnsafeMediator(t), Policy{Window: WindowSession, WarnAt: 2, BlockAt: 3}, nil, nil, nil)

	guard.Evaluate(context.Background(), "u1", "sess-1", "user", "m1")
	r := guard.Evaluate(context.Background(), "u1", "sess-2", "user", "m1")
	assert.Equal(t, ActionWarn, r.Action, "a new session should start its own counter")
}

func TestCountersDayWindowPersistsAcrossSessions(t *testing.T) {
	c := NewCounters(WindowDay)
	now := time.Now()
	assert.Equal(t, 1, c.Increment("u1", "sess-1", now))
	assert.Equal(t, 2, c.Increment("u1", "sess-2", now))
}
