package chat

import (
	"context"
	"testing"
	"time"

	"github.com/kubilitics/gatewayd/internal/cost"
	"github.com/kubilitics/gatewayd/internal/db"
	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/internal/identity"
	"github.com/kubilitics/gatewayd/internal/llm/types"
	"github.com/kubilitics/gatewayd/internal/promptguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScorer always returns a safe verdict unless told otherwise.
type fakeScorer struct {
	verdict promptguard.Verdict
	err     error
}

func (f *fakeScorer) Classify(ctx context.Context, req promptguard.Request) (promptguard.Verdict, error) {
	return f.verdict, f.err
}

// fakeAdapter is a minimal adapter.LLMAdapter for driving the engine in
// tests without a real LLM provider.
type fakeAdapter struct {
	events []types.AgentStreamEvent
}

func (f *fakeAdapter) Complete(ctx context.Context, messages []types.Message, tools []types.Tool) (string, []interface{}, error) {
	return "", nil, nil
}

func (f *fakeAdapter) CompleteStream(ctx context.Context, messages []types.Message, tools []types.Tool) (chan string, chan interface{}, error) {
	return nil, nil, nil
}

func (f *fakeAdapter) CountTokens(ctx context.Context, messages []types.Message, tools []types.Tool) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total, nil
}

func (f *fakeAdapter) GetCapabilities(ctx context.Context) (interface{}, error) { return nil, nil }

func (f *fakeAdapter) NormalizeToolCall(ctx context.Context, toolCall interface{}) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeAdapter) CompleteWithTools(ctx context.Context, messages []types.Message, tools []types.Tool, executor types.ToolExecutor, cfg types.AgentConfig) (<-chan types.AgentStreamEvent, error) {
	ch := make(chan types.AgentStreamEvent, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type collectingSink struct {
	frames []Frame
}

func (s *collectingSink) Send(f Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func newTestEngine(t *testing.T, scorerVerdict promptguard.Verdict) (*Engine, db.Store) {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker := flow.NewTracker(NewFlowStore(store, nil), flow.NewBroadcaster(nil), nil, nil)

	mediator := promptguard.NewMediator(&fakeScorer{verdict: scorerVerdict}, time.Second, nil)
	policy := promptguard.Policy{Window: promptguard.WindowSession, WarnAt: 1, BlockAt: 2}
	guard := promptguard.NewGuard(mediator, policy, store, nil, nil)

	perms := NewRolePermissionProvider(DefaultRolePermissions(), nil)
	costCalc := cost.NewDefaultSessionCostCalculator()

	engine := NewEngine(store, tracker, guard, nil, perms, costCalc, DefaultEngineConfig(), nil)
	return engine, store
}

func contextWithUser(userID, role string) context.Context {
	return identity.WithUserContext(context.Background(), identity.UserContext{UserID: userID, Username: "u", Role: role})
}

func TestHandleMessageHappyPath(t *testing.T) {
	engine, _ := newTestEngine(t, promptguard.Verdict{Safe: true})
	sess := engine.StartSession("sess-1", "user-1", "user", "anthropic")

	adapter := &fakeAdapter{events: []types.AgentStreamEvent{
		{TextToken: "hello "},
		{TextToken: "world"},
		{Done: true},
	}}
	sink := &collectingSink{}

	ctx := contextWithUser("user-1", "user")
	err := engine.HandleMessage(ctx, sess, adapter, sink, "hi there")
	require.NoError(t, err)

	var gotComplete bool
	var text string
	for _, f := range sink.frames {
		if f.Kind == FrameText {
			text += f.Text
		}
		if f.Kind == FrameComplete {
			gotComplete = true
		}
	}
	assert.Equal(t, "hello world", text)
	assert.True(t, gotComplete)

	msgs := sess.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hello world", msgs[1].Content)
}

func TestHandleMessageBlockedUser(t *testing.T) {
	engine, store := newTestEngine(t, promptguard.Verdict{Safe: true})
	require.NoError(t, store.BlockUser(context.Background(), "user-2", "test block"))

	sess := engine.StartSession("sess-2", "user-2", "user", "anthropic")
	sink := &collectingSink{}
	ctx := contextWithUser("user-2", "user")

	err := engine.HandleMessage(ctx, sess, &fakeAdapter{}, sink, "hi")
	require.Error(t, err)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, FrameError, sink.frames[0].Kind)
}

func TestHandleMessageNoIdentityFailsAuthCheck(t *testing.T) {
	engine, _ := newTestEngine(t, promptguard.Verdict{Safe: true})
	sess := engine.StartSession("sess-3", "user-3", "user", "anthropic")
	sink := &collectingSink{}

	err := engine.HandleMessage(context.Background(), sess, &fakeAdapter{}, sink, "hi")
	require.Error(t, err)
}

func TestHandleMessageUnsafePromptIsBlocked(t *testing.T) {
	engine, _ := newTestEngine(t, promptguard.Verdict{Safe: false, Reason: "looks unsafe"})
	sess := engine.StartSession("sess-4", "user-4", "user", "anthropic")
	sink := &collectingSink{}
	ctx := contextWithUser("user-4", "user")

	err := engine.HandleMessage(ctx, sess, &fakeAdapter{}, sink, "do something bad")
	require.Error(t, err)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, FrameError, sink.frames[0].Kind)
}

func TestEndSessionWritesAuditRecord(t *testing.T) {
	engine, store := newTestEngine(t, promptguard.Verdict{Safe: true})
	sess := engine.StartSession("sess-5", "user-5", "user", "anthropic")
	sess.addTokens(100, 50)

	ctx := context.Background()
	engine.EndSession(ctx, sess, "websocket", true, "ok")

	events, err := store.QueryAuditEvents(ctx, db.AuditQuery{UserID: "user-5"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-5", events[0].SessionID)
	assert.True(t, events[0].Success)
	assert.Greater(t, events[0].CostUSD, 0.0)

	_, stillExists := engine.Session("sess-5")
	assert.False(t, stillExists)
}
