package db

import (
	"context"
	"time"
)

// Store is the durable-persistence interface for gatewayd: archived flow
// event trees, audit records, per-user daily budget tracking, user status
// (blocked/active), and the saved LLM provider configuration.
type Store interface {
	FlowStore
	AuditStore
	BudgetStore
	UserStatusStore
	LLMConfigStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── LLM config store ─────────────────────────────────────────────────────────

// LLMConfigRecord holds the persisted LLM provider configuration. The
// api_key is stored as-is in the local SQLite file (which lives inside the
// app data directory, readable only by the current OS user) and is never
// sent over the network or echoed in API responses.
type LLMConfigRecord struct {
	Provider  string    `json:"provider"` // openai | anthropic | ollama | custom
	Model     string    `json:"model"`
	APIKey    string    `json:"api_key"`
	BaseURL   string    `json:"base_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LLMConfigStore persists the active LLM provider configuration so it
// survives process restarts without re-entering an API key.
type LLMConfigStore interface {
	SaveLLMConfig(ctx context.Context, rec *LLMConfigRecord) error
	// LoadLLMConfig returns nil, nil when no config has been saved yet.
	LoadLLMConfig(ctx context.Context) (*LLMConfigRecord, error)
}

// ─── Flow store ────────────────────────────────────────────────────────────

// FlowRecord is the archived flow event tree for one completed session,
// stored as a single JSON document keyed by session id.
type FlowRecord struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	FlowDataJSON   string    `json:"flow_data"` // JSON array of flow.Event
	CreatedAt      time.Time `json:"created_at"`
}

// FlowStore persists archived flow event trees past the live tracker's
// in-memory window.
type FlowStore interface {
	// ArchiveFlow writes the full event list for a session. Called once
	// per completed session.
	ArchiveFlow(ctx context.Context, rec *FlowRecord) error

	// GetFlow retrieves the archived event tree for a session.
	GetFlow(ctx context.Context, sessionID string) (*FlowRecord, error)

	// ListFlowsForUser lists archived sessions for a user, newest first.
	ListFlowsForUser(ctx context.Context, userID string, limit int) ([]*FlowRecord, error)
}

// ─── Audit store ─────────────────────────────────────────────────────────────

// AuditRecord is the durable audit row for one completed chat session: the
// invariant "exactly one audit record per completed session" is enforced
// by the chat engine, not by this store.
type AuditRecord struct {
	ID             int64     `json:"id"`
	CorrelationID  string    `json:"correlation_id"`
	EventType      string    `json:"event_type"`
	Description    string    `json:"description"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	Source         string    `json:"source"` // "websocket" | "stream"
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CostUSD        float64   `json:"cost_usd"`
	ToolsUsedJSON  string    `json:"tools_used"` // JSON array of tool names
	MCPsUsedJSON   string    `json:"mcps_used"`  // JSON array of mcp ids
	Success        bool      `json:"success"`
	Result         string    `json:"result"`
	Metadata       string    `json:"metadata"` // JSON blob
	Timestamp      time.Time `json:"timestamp"`
}

// AuditQuery filters audit event queries.
type AuditQuery struct {
	UserID         string
	SessionID      string
	ConversationID string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// AuditStore persists audit log entries.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, rec *AuditRecord) error
	QueryAuditEvents(ctx context.Context, q AuditQuery) ([]*AuditRecord, error)
}

// ─── Budget store ──────────────────────────────────────────────────────────

// BudgetRecord is a persisted LLM token usage entry for daily budget
// tracking.
type BudgetRecord struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// BudgetStore persists LLM token usage for daily budget tracking across
// restarts. Unlike the teacher's monthly cycle, gatewayd's usage_check
// (§4.4) sums cost for the current UTC calendar day.
type BudgetStore interface {
	AppendBudgetRecord(ctx context.Context, rec *BudgetRecord) error

	// QueryBudgetRecords retrieves records for a user within a time window.
	QueryBudgetRecords(ctx context.Context, userID string, from, to time.Time) ([]*BudgetRecord, error)

	// TodayCostUSD sums a user's cost for the current UTC calendar day.
	TodayCostUSD(ctx context.Context, userID string) (float64, error)

	// GetUserBudget returns a user's daily budget limit in USD. 0 means
	// the caller should apply its own default.
	GetUserBudget(ctx context.Context, userID string) (float64, error)

	SetUserBudget(ctx context.Context, userID string, limitUSD float64) error
}

// ─── User status store ────────────────────────────────────────────────────

// UserStatusStore backs the authorization pipeline's block_check and
// active_check stages, and prompt-guard's behavioral-escalation
// block_user action.
type UserStatusStore interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
	IsActive(ctx context.Context, userID string) (bool, error)

	// BlockUser sets the user's block flag with a reason. Future
	// messages fail at block_check (§7, §8 invariant S4).
	BlockUser(ctx context.Context, userID, reason string) error

	// UnblockUser clears a user's block flag (admin action).
	UnblockUser(ctx context.Context, userID string) error

	// SetActive toggles a user's active flag (admin action).
	SetActive(ctx context.Context, userID string, active bool) error
}
