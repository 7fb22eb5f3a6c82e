package budget

// Package budget — concrete BudgetTracker implementation.
//
// Design:
//   - Reads/writes go straight to db.Store; no in-memory accumulation, since
//     usage_check (§4.4) only needs "today's" sum and per-user eventual
//     consistency is acceptable (§8: "acceptable slack <= one message").
//   - Provider pricing table (USD per 1K tokens), env-var overridable.
//   - Daily limit, not monthly: a user's spend resets implicitly at UTC
//     midnight because TodayCostUSD only sums the current calendar day.

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/gatewayd/internal/db"
	"github.com/kubilitics/gatewayd/internal/metrics"
)

// ─── Pricing ─────────────────────────────────────────────────────────────────

// providerPricing maps provider names to (input, output) cost per 1K tokens in USD.
// Override any entry via environment variables:
//
//	GATEWAYD_PRICE_ANTHROPIC_IN=0.003  GATEWAYD_PRICE_ANTHROPIC_OUT=0.015
//	GATEWAYD_PRICE_OPENAI_IN=0.0025    GATEWAYD_PRICE_OPENAI_OUT=0.010
//	GATEWAYD_PRICE_CUSTOM_IN=0.001     GATEWAYD_PRICE_CUSTOM_OUT=0.002
var providerPricing = func() map[string][2]float64 {
	table := map[string][2]float64{
		"anthropic": {0.003, 0.015},  // claude-3.5-sonnet
		"openai":    {0.0025, 0.010}, // gpt-4o
		"ollama":    {0.0, 0.0},      // local, always free
		"custom":    {0.001, 0.002},
	}
	for _, provider := range []string{"anthropic", "openai", "custom"} {
		p := strings.ToUpper(provider)
		if in, err := strconv.ParseFloat(os.Getenv("GATEWAYD_PRICE_"+p+"_IN"), 64); err == nil {
			entry := table[provider]
			entry[0] = in
			table[provider] = entry
		}
		if out, err := strconv.ParseFloat(os.Getenv("GATEWAYD_PRICE_"+p+"_OUT"), 64); err == nil {
			entry := table[provider]
			entry[1] = out
			table[provider] = entry
		}
	}
	return table
}()

// ─── Types ────────────────────────────────────────────────────────────────────

// UsageEntry is one recorded LLM call.
type UsageEntry struct {
	Provider     string
	SessionID    string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// UsageSummary aggregates today's usage for a user.
type UsageSummary struct {
	UserID            string         `json:"user_id"`
	TotalInputTokens  int            `json:"total_input_tokens"`
	TotalOutputTokens int            `json:"total_output_tokens"`
	TotalTokens       int            `json:"total_tokens"`
	TotalCostUSD      float64        `json:"total_cost_usd"`
	ByProvider        map[string]int `json:"by_provider"` // provider -> total tokens
	LimitUSD          float64        `json:"limit_usd"`
	RemainingUSD      float64        `json:"remaining_usd"`
}

// BudgetConfig sets default daily budget limits.
type BudgetConfig struct {
	// DefaultPerUserDailyLimitUSD is applied when a user has no explicit
	// limit set. 0 = unlimited.
	DefaultPerUserDailyLimitUSD float64
	// WarnThreshold is the spend fraction that triggers a non-fatal warning
	// from CheckBudgetAvailable (e.g. 0.8 = 80%).
	WarnThreshold float64
}

// DefaultBudgetConfig returns conservative defaults. All can be overridden
// per-user via SetBudgetLimit.
func DefaultBudgetConfig() *BudgetConfig {
	return &BudgetConfig{
		DefaultPerUserDailyLimitUSD: 5.0, // $5/day per user
		WarnThreshold:               0.80,
	}
}

// ─── Implementation ───────────────────────────────────────────────────────────

type budgetTrackerImpl struct {
	cfg   *BudgetConfig
	store db.Store
}

// NewBudgetTracker creates a budget tracker with default config.
func NewBudgetTracker(store db.Store) BudgetTracker {
	return NewBudgetTrackerWithConfig(DefaultBudgetConfig(), store)
}

// NewBudgetTrackerWithConfig creates a budget tracker with explicit config and store.
func NewBudgetTrackerWithConfig(cfg *BudgetConfig, store db.Store) BudgetTracker {
	if cfg == nil {
		cfg = DefaultBudgetConfig()
	}
	return &budgetTrackerImpl{cfg: cfg, store: store}
}

// effectiveLimit returns a user's configured daily limit, falling back to
// the tracker's default when the user has never set one.
func (t *budgetTrackerImpl) effectiveLimit(ctx context.Context, userID string) (float64, error) {
	limit, err := t.store.GetUserBudget(ctx, userID)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		return t.cfg.DefaultPerUserDailyLimitUSD, nil
	}
	return limit, nil
}

// RecordTokenUsage records actual token usage from an LLM call.
func (t *budgetTrackerImpl) RecordTokenUsage(ctx context.Context, userID, sessionID string, inputTokens, outputTokens int, provider string) error {
	cost := calculateCost(provider, inputTokens, outputTokens)
	rec := &db.BudgetRecord{
		UserID:       userID,
		SessionID:    sessionID,
		Provider:     provider,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		RecordedAt:   time.Now().UTC(),
	}

	metrics.LLMTokensUsed.WithLabelValues(provider, "unknown", "input").Add(float64(inputTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, "unknown", "output").Add(float64(outputTokens))
	metrics.LLMCostUSD.WithLabelValues(provider, "unknown").Add(cost)

	return t.store.AppendBudgetRecord(ctx, rec)
}

// GetUsageSummary returns today's usage summary for a user.
func (t *budgetTrackerImpl) GetUsageSummary(ctx context.Context, userID string) (*UsageSummary, error) {
	limit, err := t.effectiveLimit(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	records, err := t.store.QueryBudgetRecords(ctx, userID, start, now)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	summary := &UsageSummary{UserID: userID, ByProvider: map[string]int{}, LimitUSD: limit}
	for _, r := range records {
		summary.TotalInputTokens += r.InputTokens
		summary.TotalOutputTokens += r.OutputTokens
		summary.TotalCostUSD += r.CostUSD
		summary.ByProvider[r.Provider] += r.InputTokens + r.OutputTokens
	}
	summary.TotalTokens = summary.TotalInputTokens + summary.TotalOutputTokens
	if limit > 0 {
		summary.RemainingUSD = limit - summary.TotalCostUSD
	}
	return summary, nil
}

// GetUsageDetails returns today's usage entries for a user.
func (t *budgetTrackerImpl) GetUsageDetails(ctx context.Context, userID string) ([]*UsageEntry, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	records, err := t.store.QueryBudgetRecords(ctx, userID, start, now)
	if err != nil {
		return nil, fmt.Errorf("get usage details: %w", err)
	}

	entries := make([]*UsageEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, &UsageEntry{
			Provider:     r.Provider,
			SessionID:    r.SessionID,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostUSD:      r.CostUSD,
			Timestamp:    r.RecordedAt,
		})
	}
	return entries, nil
}

// CheckBudgetAvailable checks whether a user has budget for an estimated call.
// This implements usage_check (§4.4): sum of today's cost vs. the user's
// daily limit, emitting remaining budget.
func (t *budgetTrackerImpl) CheckBudgetAvailable(ctx context.Context, userID string, estimatedTokens int) (bool, error) {
	limit, err := t.effectiveLimit(ctx, userID)
	if err != nil {
		return false, err
	}
	if limit <= 0 {
		return true, nil // unlimited
	}

	spent, err := t.store.TodayCostUSD(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check budget: %w", err)
	}

	remaining := limit - spent
	// No provider is known at estimation time; use a conservative upper
	// bound across the pricing table's highest output rate.
	estimatedCost := float64(estimatedTokens) / 1000.0 * 0.015

	if remaining < estimatedCost {
		return false, nil
	}
	if remaining < limit*(1-t.cfg.WarnThreshold) {
		return true, fmt.Errorf("budget warning: %.1f%% used (remaining: $%.4f)", (spent/limit)*100, remaining)
	}
	return true, nil
}

// EnforceBudgetLimit returns an error if today's spend has reached the
// user's daily limit.
func (t *budgetTrackerImpl) EnforceBudgetLimit(ctx context.Context, userID string) error {
	limit, err := t.effectiveLimit(ctx, userID)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return nil // unlimited
	}

	spent, err := t.store.TodayCostUSD(ctx, userID)
	if err != nil {
		return fmt.Errorf("enforce budget query: %w", err)
	}

	if spent >= limit {
		metrics.BudgetExceeded.WithLabelValues(userID).Inc()
		return fmt.Errorf("budget exceeded: spent $%.4f of $%.4f daily limit", spent, limit)
	}
	return nil
}

// GetEstimatedCost estimates the cost for an LLM call.
func (t *budgetTrackerImpl) GetEstimatedCost(_ context.Context, inputTokens, outputTokens int, provider string) (float64, error) {
	return calculateCost(provider, inputTokens, outputTokens), nil
}

// SetBudgetLimit sets a user's daily spending limit.
func (t *budgetTrackerImpl) SetBudgetLimit(ctx context.Context, userID string, limitUSD float64) error {
	return t.store.SetUserBudget(ctx, userID, limitUSD)
}

// GetBudgetLimits returns limit/spend/remaining info for a user.
func (t *budgetTrackerImpl) GetBudgetLimits(ctx context.Context, userID string) (map[string]interface{}, error) {
	limit, err := t.effectiveLimit(ctx, userID)
	if err != nil {
		return nil, err
	}

	spent, err := t.store.TodayCostUSD(ctx, userID)
	if err != nil {
		spent = 0
	}

	return map[string]interface{}{
		"user_id":        userID,
		"limit_usd":      limit,
		"spent_usd":      spent,
		"remaining_usd":  limit - spent,
		"warn_threshold": t.cfg.WarnThreshold,
	}, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func calculateCost(provider string, inputTokens, outputTokens int) float64 {
	pricing, ok := providerPricing[provider]
	if !ok {
		pricing = providerPricing["custom"]
	}
	inputCostPer1K := pricing[0]
	outputCostPer1K := pricing[1]
	return (float64(inputTokens)/1000.0)*inputCostPer1K + (float64(outputTokens)/1000.0)*outputCostPer1K
}
