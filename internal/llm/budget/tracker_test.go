package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubilitics/gatewayd/internal/db"
)

func yesterdayUTC() time.Time {
	return time.Now().UTC().AddDate(0, 0, -1)
}

func newTestTracker(t *testing.T, limitUSD float64) (BudgetTracker, db.Store) {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultBudgetConfig()
	cfg.DefaultPerUserDailyLimitUSD = limitUSD
	return NewBudgetTrackerWithConfig(cfg, store), store
}

func TestRecordAndSummary(t *testing.T) {
	tr, _ := newTestTracker(t, 0) // unlimited
	ctx := context.Background()

	require.NoError(t, tr.RecordTokenUsage(ctx, "user-1", "sess-1", 1000, 500, "anthropic"))
	require.NoError(t, tr.RecordTokenUsage(ctx, "user-1", "sess-2", 2000, 800, "openai"))

	summary, err := tr.GetUsageSummary(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 3000, summary.TotalInputTokens)
	require.Equal(t, 1300, summary.TotalOutputTokens)
	require.Greater(t, summary.TotalCostUSD, 0.0)
	require.NotZero(t, summary.ByProvider["anthropic"])
}

func TestBudgetEnforcement(t *testing.T) {
	tr, _ := newTestTracker(t, 0.01) // $0.01 daily limit
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tr.RecordTokenUsage(ctx, "user-budget", "sess-1", 1000, 500, "openai"))
	}

	err := tr.EnforceBudgetLimit(ctx, "user-budget")
	require.Error(t, err)
}

func TestBudgetAvailableUnlimited(t *testing.T) {
	tr, _ := newTestTracker(t, 0) // unlimited
	ctx := context.Background()

	ok, err := tr.CheckBudgetAvailable(ctx, "user-unlimited", 100000)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBudgetAvailableInsufficient(t *testing.T) {
	tr, _ := newTestTracker(t, 0.001) // tiny limit
	ctx := context.Background()

	require.NoError(t, tr.RecordTokenUsage(ctx, "user-low", "sess-1", 5000, 2000, "openai"))

	ok, _ := tr.CheckBudgetAvailable(ctx, "user-low", 100000)
	require.False(t, ok)
}

func TestEstimatedCost(t *testing.T) {
	tr, _ := newTestTracker(t, 0)
	ctx := context.Background()

	cost, err := tr.GetEstimatedCost(ctx, 1000, 500, "anthropic")
	require.NoError(t, err)
	require.Greater(t, cost, 0.0)

	ollamaCost, err := tr.GetEstimatedCost(ctx, 1000, 500, "ollama")
	require.NoError(t, err)
	require.Equal(t, 0.0, ollamaCost)
}

func TestSetBudgetLimit(t *testing.T) {
	tr, _ := newTestTracker(t, 0)
	ctx := context.Background()

	require.NoError(t, tr.SetBudgetLimit(ctx, "user-limited", 5.00))

	limits, err := tr.GetBudgetLimits(ctx, "user-limited")
	require.NoError(t, err)
	require.Equal(t, 5.00, limits["limit_usd"])
}

func TestGetUsageDetails(t *testing.T) {
	tr, _ := newTestTracker(t, 0)
	ctx := context.Background()

	require.NoError(t, tr.RecordTokenUsage(ctx, "user-detail", "sess-A", 500, 200, "anthropic"))
	require.NoError(t, tr.RecordTokenUsage(ctx, "user-detail", "sess-B", 300, 100, "openai"))

	entries, err := tr.GetUsageDetails(ctx, "user-detail")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDailyBudgetNotCarriedFromYesterday(t *testing.T) {
	tr, store := newTestTracker(t, 1.0)
	ctx := context.Background()

	// Directly insert a record dated yesterday, simulating a prior day's
	// spend — it must not count toward today's usage_check.
	require.NoError(t, store.AppendBudgetRecord(ctx, &db.BudgetRecord{
		UserID: "user-rollover", Provider: "openai", CostUSD: 0.9,
		RecordedAt: yesterdayUTC(),
	}))

	summary, err := tr.GetUsageSummary(ctx, "user-rollover")
	require.NoError(t, err)
	require.Equal(t, 0.0, summary.TotalCostUSD)
}
