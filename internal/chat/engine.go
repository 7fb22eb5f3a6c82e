// Package chat implements the session engine: the fixed pipeline that
// turns one inbound chat message into an admitted, guarded, tool-capable
// LLM turn, streamed frame-by-frame to a transport-agnostic sink, with
// session-end cost accounting and a single audit record per session.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/gatewayd/internal/authz"
	"github.com/kubilitics/gatewayd/internal/cost"
	"github.com/kubilitics/gatewayd/internal/db"
	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/llm/adapter"
	"github.com/kubilitics/gatewayd/internal/llm/types"
	"github.com/kubilitics/gatewayd/internal/mcp"
	"github.com/kubilitics/gatewayd/internal/promptguard"
	"go.uber.org/zap"
)

// EngineConfig bundles the engine's tunables.
type EngineConfig struct {
	// MaxTurns caps the agentic tool-calling loop per message (§4.6).
	MaxTurns int
	// ParallelTools enables concurrent dispatch of multiple tool calls
	// returned in a single LLM turn.
	ParallelTools bool
	// DefaultDailyBudgetUSD is applied when a user has no explicit
	// budget override recorded in the store.
	DefaultDailyBudgetUSD float64
}

// DefaultEngineConfig returns gatewayd's production defaults. ParallelTools
// is false: tool calls within one LLM turn are dispatched to the MCP
// coordinator one at a time, per the spec's explicit sequencing.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxTurns:              10,
		ParallelTools:         false,
		DefaultDailyBudgetUSD: 5.0,
	}
}

// Engine wires the authorization pipeline, prompt guard, MCP coordinator,
// flow tracker, and cost/budget accounting into the single place an
// inbound chat message passes through, regardless of which transport
// (WebSocket, SSE stream) received it.
type Engine struct {
	pipeline    *authz.Pipeline
	guard       *promptguard.Guard
	coordinator *mcp.Coordinator
	tracker     *flow.Tracker
	store       db.Store
	costCalc    *cost.SessionCostCalculator
	cfg         EngineConfig
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine builds an Engine. store backs both the authz usage/user-status
// checks (via adapters built here) and the session-end audit record.
func NewEngine(
	store db.Store,
	tracker *flow.Tracker,
	guard *promptguard.Guard,
	coordinator *mcp.Coordinator,
	perms authz.PermissionProvider,
	costCalc *cost.SessionCostCalculator,
	cfg EngineConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if costCalc == nil {
		costCalc = cost.NewDefaultSessionCostCalculator()
	}
	usage := newUsageAdapter(store, cfg.DefaultDailyBudgetUSD)
	pipeline := authz.New(store, usage, perms, tracker)

	return &Engine{
		pipeline:    pipeline,
		guard:       guard,
		coordinator: coordinator,
		tracker:     tracker,
		store:       store,
		costCalc:    costCalc,
		cfg:         cfg,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// NewFlowStore builds the flow.Store adapter this engine's tracker should
// archive to, given a store and a way to resolve a session's conversation
// id (see Session.ConversationID).
func NewFlowStore(store db.Store, conversationIDFn func(string) string) flow.Store {
	return newFlowStoreAdapter(store, conversationIDFn)
}

// StartSession registers a new session under sessionID, returning it for
// use across the connection's lifetime. Safe to call once per connection.
func (e *Engine) StartSession(sessionID, userID, role, provider string) *Session {
	sess := newSession(sessionID, userID, role, provider)
	e.mu.Lock()
	e.sessions[sessionID] = sess
	e.mu.Unlock()
	return sess
}

// Session looks up a previously started session.
func (e *Engine) Session(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// HandleMessage runs the full fixed pipeline for one inbound user message:
// AdmitMessage -> prompt guard -> tool_filter -> agentic LLM loop,
// forwarding every frame to sink as it is produced. ctx must carry the
// caller's identity.UserContext (set by the transport handler from the
// upstream gateway's trusted headers).
func (e *Engine) HandleMessage(ctx context.Context, sess *Session, llmAdapter adapter.LLMAdapter, sink FrameSink, userMessage string) error {
	if err := e.pipeline.AdmitMessage(ctx, sess.ID); err != nil {
		_ = sink.Send(errorFrame(err))
		return err
	}

	guardResult := e.guard.Evaluate(ctx, sess.UserID, sess.ID, sess.Role, userMessage)
	e.recordGuardDecision(sess, guardResult)
	if !guardResult.Allowed {
		err := gwerrors.New(gwerrors.PromptUnsafe, "message blocked by prompt guard: "+guardResult.Verdict.Reason)
		_ = sink.Send(errorFrame(err))
		return err
	}
	if guardResult.Action == promptguard.ActionWarn {
		_ = sink.Send(warningFrame("message flagged as potentially unsafe: " + guardResult.Verdict.Reason))
	}

	sess.appendMessage(types.Message{Role: "user", Content: userMessage})

	tools, err := e.filteredTools(ctx, sess)
	if err != nil {
		_ = sink.Send(errorFrame(err))
		return err
	}

	executor := newCoordinatorExecutor(e.coordinator, e.pipeline, sess.ID, func(toolName, mcpID string, cacheHit bool) {
		sess.recordToolInvocation(toolName, mcpID)
		e.tracker.Record(sess.ID, sess.UserID, "tool_invocation", map[string]interface{}{
			"tool_name": toolName, "mcp_id": mcpID, "cache_hit": cacheHit,
		}, time.Now())
	})

	messages := sess.messages()
	if inputTokens, err := llmAdapter.CountTokens(ctx, messages, tools); err == nil {
		sess.addTokens(inputTokens, 0)
	}

	agentCfg := types.AgentConfig{MaxTurns: e.cfg.MaxTurns, ParallelTools: e.cfg.ParallelTools}
	evtCh, err := llmAdapter.CompleteWithTools(ctx, messages, tools, executor, agentCfg)
	if err != nil {
		_ = sink.Send(errorFrame(err))
		return err
	}

	var response strings.Builder
	for evt := range evtCh {
		if evt.Err != nil {
			_ = sink.Send(errorFrame(evt.Err))
			return evt.Err
		}
		if evt.TextToken != "" {
			response.WriteString(evt.TextToken)
			sess.addTokens(0, len(evt.TextToken)/4+1)
			if sendErr := sink.Send(textFrame(evt.TextToken)); sendErr != nil {
				return sendErr
			}
		}
		if evt.ToolEvent != nil {
			if sendErr := sink.Send(toolFrame(evt.ToolEvent)); sendErr != nil {
				return sendErr
			}
		}
		if evt.Done {
			sess.appendMessage(types.Message{Role: "assistant", Content: response.String()})
			return sink.Send(completeFrame())
		}
	}
	return nil
}

// filteredTools gathers the merged MCP tool catalog and narrows it to
// what the caller's role may invoke via the tool_filter stage.
func (e *Engine) filteredTools(ctx context.Context, sess *Session) ([]types.Tool, error) {
	if e.coordinator == nil {
		return nil, nil
	}
	catalog := e.coordinator.ListTools(ctx)
	names := make([]string, 0)
	schemaByName := make(map[string]types.Tool)
	for _, tools := range catalog {
		for _, t := range tools {
			names = append(names, t.Name)
			schemaByName[t.Name] = types.Tool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
	}
	allowed, err := e.pipeline.FilterTools(ctx, sess.ID, names)
	if err != nil {
		return nil, err
	}
	out := make([]types.Tool, 0, len(allowed))
	for _, name := range allowed {
		out = append(out, schemaByName[name])
	}
	return out, nil
}

func (e *Engine) recordGuardDecision(sess *Session, result promptguard.Result) {
	e.tracker.Record(sess.ID, sess.UserID, "prompt_guard_check", map[string]interface{}{
		"safe":   result.Verdict.Safe,
		"score":  result.Verdict.Score,
		"action": string(result.Action),
	}, time.Now())
}

// EndSession archives the session's flow tree, computes its final cost,
// writes exactly one audit record, and releases the guard's session-scoped
// escalation counters. Call once when the connection or stream closes.
func (e *Engine) EndSession(ctx context.Context, sess *Session, source string, success bool, resultSummary string) {
	inputTokens, outputTokens, tools := sess.snapshot()
	sessCost := e.costCalc.Calculate(sess.Provider, inputTokens, outputTokens, tools)

	toolNames := make([]string, 0, len(tools))
	mcpNames := make(map[string]struct{})
	for _, t := range tools {
		toolNames = append(toolNames, t.ToolName)
		if t.MCPName != "" {
			mcpNames[t.MCPName] = struct{}{}
		}
	}
	mcpList := make([]string, 0, len(mcpNames))
	for id := range mcpNames {
		mcpList = append(mcpList, id)
	}

	toolsJSON, _ := json.Marshal(toolNames)
	mcpsJSON, _ := json.Marshal(mcpList)

	rec := &db.AuditRecord{
		CorrelationID:  sess.ID,
		EventType:      "chat_session_completed",
		Description:    fmt.Sprintf("chat session %s completed", sess.ID),
		UserID:         sess.UserID,
		ConversationID: sess.ConversationID,
		SessionID:      sess.ID,
		Source:         source,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		CostUSD:        sessCost.TotalCostUSD,
		ToolsUsedJSON:  string(toolsJSON),
		MCPsUsedJSON:   string(mcpsJSON),
		Success:        success,
		Result:         resultSummary,
		Timestamp:      time.Now().UTC(),
	}
	if err := e.store.AppendAuditEvent(ctx, rec); err != nil {
		e.logger.Error("failed to append audit record", zap.String("session_id", sess.ID), zap.Error(err))
	}

	e.tracker.Archive(ctx, sess.ID, sess.UserID)
	e.guard.EndSession(sess.ID)

	e.mu.Lock()
	delete(e.sessions, sess.ID)
	e.mu.Unlock()
}
