package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Flows ────────────────────────────────────────────────────────────────────

func TestFlowArchiveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &FlowRecord{
		SessionID:      "sess-1",
		ConversationID: "conv-1",
		UserID:         "u1",
		FlowDataJSON:   `[{"kind":"user_message"}]`,
		CreatedAt:      time.Now().Round(time.Second),
	}
	require.NoError(t, s.ArchiveFlow(ctx, rec))

	got, err := s.GetFlow(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, rec.FlowDataJSON, got.FlowDataJSON)

	// Re-archiving the same session overwrites flow_data.
	rec.FlowDataJSON = `[{"kind":"user_message"},{"kind":"tool_call"}]`
	require.NoError(t, s.ArchiveFlow(ctx, rec))
	got, err = s.GetFlow(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.FlowDataJSON, got.FlowDataJSON)
}

func TestGetFlowMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetFlow(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFlowsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.ArchiveFlow(ctx, &FlowRecord{
			SessionID: "sess-" + string(rune('a'+i)),
			UserID:    "u1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.ArchiveFlow(ctx, &FlowRecord{SessionID: "other-sess", UserID: "u2", CreatedAt: time.Now()}))

	list, err := s.ListFlowsForUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

// ─── Audit ────────────────────────────────────────────────────────────────────

func TestAuditEventAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Round(time.Second)
	events := []*AuditRecord{
		{CorrelationID: "c1", EventType: "session_completed", UserID: "u1", SessionID: "s1", Source: "websocket", Success: true, Timestamp: now},
		{CorrelationID: "c2", EventType: "session_completed", UserID: "u1", SessionID: "s2", Source: "stream", Success: true, Timestamp: now.Add(time.Second)},
		{CorrelationID: "c3", EventType: "session_blocked", UserID: "u2", SessionID: "s3", Source: "websocket", Success: false, Timestamp: now.Add(2 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, s.AppendAuditEvent(ctx, e))
	}

	all, err := s.QueryAuditEvents(ctx, AuditQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byUser, err := s.QueryAuditEvents(ctx, AuditQuery{UserID: "u1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	bySession, err := s.QueryAuditEvents(ctx, AuditQuery{SessionID: "s3", Limit: 10})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "session_blocked", bySession[0].EventType)

	byTime, err := s.QueryAuditEvents(ctx, AuditQuery{From: now, To: now.Add(time.Second), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, byTime, 2)
}

// ─── Budget ───────────────────────────────────────────────────────────────────

func TestBudgetRecordAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.AppendBudgetRecord(ctx, &BudgetRecord{
		UserID: "u1", SessionID: "s1", Provider: "anthropic",
		InputTokens: 100, OutputTokens: 50, CostUSD: 0.02, RecordedAt: now,
	}))
	require.NoError(t, s.AppendBudgetRecord(ctx, &BudgetRecord{
		UserID: "u1", SessionID: "s2", Provider: "openai",
		InputTokens: 200, OutputTokens: 80, CostUSD: 0.05, RecordedAt: now.Add(time.Minute),
	}))

	records, err := s.QueryBudgetRecords(ctx, "u1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, records, 2)

	total, err := s.TodayCostUSD(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.07, total, 0.0001)
}

func TestTodayCostUSDExcludesYesterday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, s.AppendBudgetRecord(ctx, &BudgetRecord{
		UserID: "u1", Provider: "openai", CostUSD: 10.0, RecordedAt: yesterday,
	}))

	total, err := s.TodayCostUSD(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}

func TestUserBudgetLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	limit, err := s.GetUserBudget(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, limit, "no row yet means zero, caller applies its own default")

	require.NoError(t, s.SetUserBudget(ctx, "u1", 5.0))
	limit, err = s.GetUserBudget(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, limit)

	require.NoError(t, s.SetUserBudget(ctx, "u1", 7.5))
	limit, err = s.GetUserBudget(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7.5, limit)
}

// ─── User status ──────────────────────────────────────────────────────────────

func TestUserStatusDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blocked, err := s.IsBlocked(ctx, "new-user")
	require.NoError(t, err)
	assert.False(t, blocked)

	active, err := s.IsActive(ctx, "new-user")
	require.NoError(t, err)
	assert.True(t, active, "no row yet means active by default")
}

func TestBlockAndUnblockUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BlockUser(ctx, "u1", "prompt guard behavioral escalation"))
	blocked, err := s.IsBlocked(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, s.UnblockUser(ctx, "u1"))
	blocked, err = s.IsBlocked(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestSetActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "u1", false))
	active, err := s.IsActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.SetActive(ctx, "u1", true))
	active, err = s.IsActive(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, active)
}

// ─── LLM config ────────────────────────────────────────────────────────────────

func TestLLMConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadLLMConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := &LLMConfigRecord{
		Provider: "anthropic", Model: "claude-sonnet", APIKey: "sk-test", BaseURL: "",
		UpdatedAt: time.Now().Round(time.Second),
	}
	require.NoError(t, s.SaveLLMConfig(ctx, rec))

	got, err = s.LoadLLMConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "claude-sonnet", got.Model)

	rec.Model = "claude-opus"
	require.NoError(t, s.SaveLLMConfig(ctx, rec))
	got, err = s.LoadLLMConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", got.Model)
}

// ─── Persistence health ───────────────────────────────────────────────────────

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestIdempotentMigration(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	_ = s.Close()
}
