package budget

import "context"

// Package budget tracks LLM token usage and spend against per-user daily
// budgets.
//
// Responsibilities:
//   - Track token usage per session and per user
//   - Enforce a configurable daily cost limit per user (usage_check, §4.4)
//   - Monitor cumulative cost across providers
//   - Provide usage summaries for the admin/config surface
//   - Block new LLM calls once the daily limit is reached
//
// Budget Types:
//  1. Global daily budget: total spend across all users
//  2. Per-user daily budget: spending limit per user account, reset at UTC
//     midnight rather than carried forward like a monthly cycle
//
// Cost Calculation:
//   - Cost = (input_tokens * input_cost) + (output_tokens * output_cost)
//   - Provider-specific pricing (OpenAI, Anthropic, Ollama, custom)
//   - Ollama: zero cost
//
// Integration Points:
//   - LLM adapter: reports token usage per completion
//   - Chat engine: calls CheckBudgetAvailable before admitting a message
//   - Admin surface: exposes usage/limit endpoints

// BudgetTracker defines the interface for budget tracking.
type BudgetTracker interface {
	// RecordTokenUsage records token usage from an LLM call.
	RecordTokenUsage(ctx context.Context, userID, sessionID string, inputTokens, outputTokens int, provider string) error

	// GetUsageSummary returns today's usage summary for a user.
	GetUsageSummary(ctx context.Context, userID string) (*UsageSummary, error)

	// GetUsageDetails returns today's usage entries for a user.
	GetUsageDetails(ctx context.Context, userID string) ([]*UsageEntry, error)

	// CheckBudgetAvailable reports whether a user has budget left today for
	// an operation of the given estimated token size.
	CheckBudgetAvailable(ctx context.Context, userID string, estimatedTokens int) (bool, error)

	// EnforceBudgetLimit returns an error if today's spend has reached the
	// user's daily limit.
	EnforceBudgetLimit(ctx context.Context, userID string) error

	// GetEstimatedCost estimates the cost of an operation.
	GetEstimatedCost(ctx context.Context, inputTokens, outputTokens int, provider string) (float64, error)

	// SetBudgetLimit sets a user's daily budget limit in USD.
	SetBudgetLimit(ctx context.Context, userID string, limitUSD float64) error

	// GetBudgetLimits returns the current limit/spend/remaining for a user.
	GetBudgetLimits(ctx context.Context, userID string) (map[string]interface{}, error)
}
