package chat

// coordinatorExecutor adapts the mcp.Coordinator tool catalog to
// types.ToolExecutor, the interface the agentic loop in internal/llm/adapter
// drives. It also runs the authz mcp_permission_check stage before every
// dispatch, since Execute is the one chokepoint every tool call passes
// through regardless of which LLM turn requested it.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kubilitics/gatewayd/internal/authz"
	"github.com/kubilitics/gatewayd/internal/llm/types"
	"github.com/kubilitics/gatewayd/internal/mcp"
)

// coordinatorExecutor routes one session's tool calls through the MCP
// coordinator, recording which MCP each tool name belongs to so Execute
// can run the permission check and so the session's cost accounting can
// attribute a tool-surcharge invocation to the right MCP.
type coordinatorExecutor struct {
	coordinator   *mcp.Coordinator
	pipeline      *authz.Pipeline
	sessionID     string
	autonomyLevel int
	onInvocation  func(toolName, mcpID string, cacheHit bool)
}

// newCoordinatorExecutor builds a ToolExecutor for one session. onInvocation,
// if non-nil, is called after every successful dispatch so the caller can
// track tool usage for cost and audit purposes.
func newCoordinatorExecutor(coordinator *mcp.Coordinator, pipeline *authz.Pipeline, sessionID string, onInvocation func(toolName, mcpID string, cacheHit bool)) types.ToolExecutor {
	return &coordinatorExecutor{
		coordinator:  coordinator,
		pipeline:     pipeline,
		sessionID:    sessionID,
		onInvocation: onInvocation,
	}
}

// WithAutonomyLevel returns a copy scoped to a different autonomy level.
// gatewayd does not currently gate tool dispatch on autonomy level beyond
// role-based permission, but the field is threaded through so a future
// per-tool autonomy requirement (types.Tool.RequiredAutonomyLevel) has
// somewhere to read from.
func (e *coordinatorExecutor) WithAutonomyLevel(level int) types.ToolExecutor {
	clone := *e
	clone.autonomyLevel = level
	return &clone
}

// Execute finds which registered MCP owns toolName, runs the
// mcp_permission_check stage, then dispatches through the coordinator.
func (e *coordinatorExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	mcpID, ok := e.resolveMCP(ctx, toolName)
	if !ok {
		return "", fmt.Errorf("no registered mcp exposes tool %q", toolName)
	}

	if e.pipeline != nil {
		if err := e.pipeline.CheckMCPPermission(ctx, e.sessionID, mcpID); err != nil {
			return "", err
		}
	}

	result, err := e.coordinator.Invoke(ctx, mcpID, toolName, args)
	if err != nil {
		return "", err
	}

	if e.onInvocation != nil {
		e.onInvocation(toolName, mcpID, result.CacheHit)
	}

	return encodeToolResult(result.Output)
}

// resolveMCP looks up which registered MCP exposes toolName by scanning
// the coordinator's merged tool catalog. Ambiguity (two MCPs exposing the
// same tool name) resolves to the first match found, since tool names are
// expected to be unique across a deployment's registered MCP set.
func (e *coordinatorExecutor) resolveMCP(ctx context.Context, toolName string) (string, bool) {
	for mcpID, tools := range e.coordinator.ListTools(ctx) {
		for _, t := range tools {
			if t.Name == toolName {
				return mcpID, true
			}
		}
	}
	return "", false
}

// encodeToolResult renders a tool's output as the string the LLM expects
// to see fed back into the conversation.
func encodeToolResult(output interface{}) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
