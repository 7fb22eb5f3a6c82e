package cost

import (
	"fmt"
	"time"
)

// Package cost computes the final USD cost of a completed chat session:
// per-token provider pricing plus a per-tool-invocation surcharge for
// tools that declare one (§4.8). Budget writes at session completion,
// not mid-stream — this calculator produces that single number, which
// the chat engine then persists via db.BudgetRecord / db.AuditRecord.

// TokenPricing is the (input, output) USD cost per 1K tokens for one
// provider.
type TokenPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PricingConfig holds per-provider token pricing and per-tool surcharges.
type PricingConfig struct {
	Providers        map[string]TokenPricing
	ToolSurcharge    map[string]float64 // tool name -> flat USD surcharge per invocation
	DefaultSurcharge float64            // applied to tools with no declared surcharge
}

// DefaultPricingConfig mirrors the rates in internal/llm/budget but is
// independently configurable: session-level cost accounting is allowed to
// diverge from the live running-ledger estimate used by usage_check.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Providers: map[string]TokenPricing{
			"anthropic": {InputPer1K: 0.003, OutputPer1K: 0.015},
			"openai":    {InputPer1K: 0.0025, OutputPer1K: 0.010},
			"ollama":    {InputPer1K: 0, OutputPer1K: 0},
			"custom":    {InputPer1K: 0.001, OutputPer1K: 0.002},
		},
		ToolSurcharge:    map[string]float64{},
		DefaultSurcharge: 0,
	}
}

// ToolInvocation is one completed tool call within a session, used for the
// surcharge computation.
type ToolInvocation struct {
	ToolName string
	MCPName  string
}

// SessionCost is the itemized cost breakdown for one completed session.
type SessionCost struct {
	Provider      string    `json:"provider"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TokenCostUSD  float64   `json:"token_cost_usd"`
	ToolCostUSD   float64   `json:"tool_cost_usd"`
	ToolCallCount int       `json:"tool_call_count"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	ComputedAt    time.Time `json:"computed_at"`
}

// SessionCostCalculator computes the final cost of a completed session.
type SessionCostCalculator struct {
	cfg PricingConfig
}

// NewSessionCostCalculator builds a calculator with the given pricing
// config.
func NewSessionCostCalculator(cfg PricingConfig) *SessionCostCalculator {
	return &SessionCostCalculator{cfg: cfg}
}

// NewDefaultSessionCostCalculator builds a calculator with DefaultPricingConfig.
func NewDefaultSessionCostCalculator() *SessionCostCalculator {
	return NewSessionCostCalculator(DefaultPricingConfig())
}

// Calculate computes a session's total cost: per-token price times token
// count, plus a per-tool-invocation surcharge where declared.
func (c *SessionCostCalculator) Calculate(provider string, inputTokens, outputTokens int, tools []ToolInvocation) SessionCost {
	pricing, ok := c.cfg.Providers[provider]
	if !ok {
		pricing = c.cfg.Providers["custom"]
	}

	tokenCost := (float64(inputTokens)/1000.0)*pricing.InputPer1K + (float64(outputTokens)/1000.0)*pricing.OutputPer1K

	toolCost := 0.0
	for _, t := range tools {
		if surcharge, declared := c.cfg.ToolSurcharge[t.ToolName]; declared {
			toolCost += surcharge
		} else {
			toolCost += c.cfg.DefaultSurcharge
		}
	}

	return SessionCost{
		Provider:      provider,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TokenCostUSD:  tokenCost,
		ToolCostUSD:   toolCost,
		ToolCallCount: len(tools),
		TotalCostUSD:  tokenCost + toolCost,
		ComputedAt:    time.Now().UTC(),
	}
}

// SetToolSurcharge declares a per-invocation USD surcharge for a tool
// (e.g. a metered external API the tool calls out to).
func (c *SessionCostCalculator) SetToolSurcharge(toolName string, usd float64) {
	c.cfg.ToolSurcharge[toolName] = usd
}

// GetPricing returns the calculator's current pricing configuration.
func (c *SessionCostCalculator) GetPricing() PricingConfig {
	return c.cfg
}

// UpdatePricing replaces the calculator's pricing configuration.
func (c *SessionCostCalculator) UpdatePricing(cfg PricingConfig) {
	c.cfg = cfg
}

// FormatUSD renders a cost for display, e.g. in admin usage summaries.
func FormatUSD(amount float64) string {
	return fmt.Sprintf("$%.4f", amount)
}
