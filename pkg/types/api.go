// Package types defines the public API types shared between gatewayd and
// its admin/monitoring consumers — the wire contracts for the chat,
// monitoring-control, and flow-observation surfaces.
package types

import "time"

// ChatMessage is one turn in a conversation, sent or received over
// /ws/chat or POST /ask/stream.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" | "assistant" | "tool"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatFrame is a single envelope sent down the chat transport — either a
// streamed text token, a tool lifecycle notice, or a terminal error.
type ChatFrame struct {
	Type      string      `json:"type"` // "token" | "tool_call" | "tool_result" | "done" | "error"
	Content   string      `json:"content,omitempty"`
	ToolName  string      `json:"tool_name,omitempty"`
	ToolArgs  interface{} `json:"tool_args,omitempty"`
	ToolError string      `json:"tool_error,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// FlowEvent is a single node in a session's flow-event tree, as observed
// by the admin monitoring socket.
type FlowEvent struct {
	ID        string                 `json:"id"`
	ParentID  string                 `json:"parent_id,omitempty"`
	SessionID string                 `json:"session_id"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MonitoringRegistration is a TTL'd admin subscription to one user's flow
// events.
type MonitoringRegistration struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UsageSummary reports a user's accumulated usage for the current day.
type UsageSummary struct {
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"` // YYYY-MM-DD
	TotalTokens    int     `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	DailyBudgetUSD float64 `json:"daily_budget_usd"`
	RemainingUSD   float64 `json:"remaining_usd"`
}

// ErrorResponse is the standard JSON error envelope for the admin HTTP
// surface.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ListResponse is a generic paginated list envelope.
type ListResponse struct {
	Items []interface{} `json:"items"`
	Total int           `json:"total"`
}
