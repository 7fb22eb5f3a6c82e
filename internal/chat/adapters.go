package chat

// Adapters reconciling the narrow collaborator interfaces internal/authz
// and internal/flow define against the shapes internal/db.Store actually
// exposes. Each adapter is a thin wrapper with no behavior of its own —
// the chat engine is the only thing that constructs them.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kubilitics/gatewayd/internal/db"
	"github.com/kubilitics/gatewayd/internal/flow"
)

// flowStoreAdapter satisfies flow.Store by marshaling a session's event
// list to JSON and writing it through db.Store.ArchiveFlow, which expects
// a single *db.FlowRecord rather than the raw (sessionID, userID, events)
// triple flow.Tracker.Archive passes.
type flowStoreAdapter struct {
	store db.Store
	// conversationID looks up the conversation id for a session, since
	// flow.Store's interface carries no conversation identity of its own.
	conversationID func(sessionID string) string
}

// newFlowStoreAdapter builds a flow.Store backed by store. conversationIDFn
// resolves a session id to its conversation id for the archived record;
// pass nil to leave ConversationID empty.
func newFlowStoreAdapter(store db.Store, conversationIDFn func(string) string) flow.Store {
	if conversationIDFn == nil {
		conversationIDFn = func(string) string { return "" }
	}
	return &flowStoreAdapter{store: store, conversationID: conversationIDFn}
}

func (a *flowStoreAdapter) ArchiveFlow(ctx context.Context, sessionID, userID string, events []flow.Event) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return a.store.ArchiveFlow(ctx, &db.FlowRecord{
		SessionID:      sessionID,
		ConversationID: a.conversationID(sessionID),
		UserID:         userID,
		FlowDataJSON:   string(raw),
		CreatedAt:      time.Now().UTC(),
	})
}

// usageAdapter satisfies authz.UsageProvider, naming db.Store.GetUserBudget
// as DailyBudgetUSD and substituting defaultLimitUSD when the store holds
// no explicit override (0 means "unset", matching db.Store's convention).
type usageAdapter struct {
	store           db.Store
	defaultLimitUSD float64
}

func newUsageAdapter(store db.Store, defaultLimitUSD float64) *usageAdapter {
	return &usageAdapter{store: store, defaultLimitUSD: defaultLimitUSD}
}

func (a *usageAdapter) TodayCostUSD(ctx context.Context, userID string) (float64, error) {
	return a.store.TodayCostUSD(ctx, userID)
}

func (a *usageAdapter) DailyBudgetUSD(ctx context.Context, userID string) (float64, error) {
	limit, err := a.store.GetUserBudget(ctx, userID)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return a.defaultLimitUSD, nil
	}
	return limit, nil
}
