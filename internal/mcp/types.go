// Package mcp implements the MCP coordinator: the registry of remote MCP
// tool servers, periodic health probing, and the cache/breaker-aware
// dispatch path for list_tools and invoke calls.
package mcp

import "time"

// ToolSchema describes one tool a remote MCP server exposes.
type ToolSchema struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	InputSchema     map[string]interface{} `json:"input_schema"`
	NonIdempotent   bool                   `json:"non_idempotent"`
	RequiredRole    string                 `json:"required_role,omitempty"`
	ToolSurchargeUSD float64               `json:"tool_surcharge_usd,omitempty"`
}

// Descriptor is the registered record for one MCP tool server.
type Descriptor struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	BaseURL string       `json:"base_url"`
	Tools   []ToolSchema `json:"tools"`

	// Healthy reflects the most recent probe result; read/written only by
	// the coordinator's health-probe loop.
	Healthy    bool      `json:"healthy"`
	LastProbed time.Time `json:"last_probed"`
}

// InvocationResult is what Invoke returns to the caller.
type InvocationResult struct {
	ToolName string      `json:"tool_name"`
	Output   interface{} `json:"output"`
	CacheHit bool        `json:"cache_hit"`
	Duration time.Duration
}
