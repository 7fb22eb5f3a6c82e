// Package authz implements the authorization and quota pipeline: a fixed
// linear sequence of named checkpoints run before a message is admitted
// into the chat session engine's LLM loop, and again before each tool
// dispatch for the mcp_permission_check / tool_filter stages.
//
// Every checkpoint emits exactly one flow event, whether it allows or
// denies, so the full pipeline is always visible in a session's flow tree.
package authz

import (
	"context"
	"time"

	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/identity"
)

// Stage names, matching flow event kinds emitted by this pipeline.
const (
	StageAuthCheck           = "auth_check"
	StageBlockCheck          = "block_check"
	StageActiveCheck         = "active_check"
	StageUsageCheck          = "usage_check"
	StageMCPPermissionCheck  = "mcp_permission_check"
	StageToolFilter          = "tool_filter"
)

// UserStatusProvider answers the block/active checks for a user. Its
// concrete implementation is backed by the durable store or an in-memory
// stub in tests.
type UserStatusProvider interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
	IsActive(ctx context.Context, userID string) (bool, error)
}

// UsageProvider answers the daily budget check.
type UsageProvider interface {
	// TodayCostUSD sums a user's cost records for the current day.
	TodayCostUSD(ctx context.Context, userID string) (float64, error)
	// DailyBudgetUSD returns the user's configured daily budget.
	DailyBudgetUSD(ctx context.Context, userID string) (float64, error)
}

// PermissionProvider answers which MCPs/tools a user's role may reach.
type PermissionProvider interface {
	// AllowedMCPs returns the MCP ids this role may use.
	AllowedMCPs(ctx context.Context, role string) ([]string, error)
	// AllowedTools filters toolNames down to those the role may invoke.
	AllowedTools(ctx context.Context, role string, toolNames []string) ([]string, error)
}

// Pipeline runs the fixed authorization sequence.
type Pipeline struct {
	status  UserStatusProvider
	usage   UsageProvider
	perms   PermissionProvider
	tracker *flow.Tracker
}

// New creates a Pipeline wired to its collaborators and the flow tracker
// that records each stage's outcome.
func New(status UserStatusProvider, usage UsageProvider, perms PermissionProvider, tracker *flow.Tracker) *Pipeline {
	return &Pipeline{status: status, usage: usage, perms: perms, tracker: tracker}
}

// AdmitMessage runs auth_check, block_check, active_check, and usage_check
// in order, short-circuiting on the first failure. It must be called once
// per inbound chat message before the LLM loop starts.
func (p *Pipeline) AdmitMessage(ctx context.Context, sessionID string) error {
	uc, ok := identity.FromContext(ctx)
	if !ok || uc.UserID == "" {
		p.emit(sessionID, "", StageAuthCheck, false, nil)
		return gwerrors.New(gwerrors.AuthMissing, "no authenticated user in context")
	}
	p.emit(sessionID, uc.UserID, StageAuthCheck, true, nil)

	blocked, err := p.status.IsBlocked(ctx, uc.UserID)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "block_check lookup failed", err)
	}
	p.emit(sessionID, uc.UserID, StageBlockCheck, !blocked, nil)
	if blocked {
		return gwerrors.New(gwerrors.Blocked, "user is blocked")
	}

	active, err := p.status.IsActive(ctx, uc.UserID)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "active_check lookup failed", err)
	}
	p.emit(sessionID, uc.UserID, StageActiveCheck, active, nil)
	if !active {
		return gwerrors.New(gwerrors.Inactive, "user account is inactive")
	}

	spent, err := p.usage.TodayCostUSD(ctx, uc.UserID)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "usage_check lookup failed", err)
	}
	budget, err := p.usage.DailyBudgetUSD(ctx, uc.UserID)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "usage_check budget lookup failed", err)
	}
	withinBudget := spent < budget
	p.emit(sessionID, uc.UserID, StageUsageCheck, withinBudget, map[string]interface{}{
		"spent_usd": spent, "budget_usd": budget,
	})
	if !withinBudget {
		return gwerrors.New(gwerrors.QuotaExceeded, "daily budget exceeded")
	}

	return nil
}

// CheckMCPPermission runs the mcp_permission_check stage, verifying the
// caller's role may use the named MCP at all.
func (p *Pipeline) CheckMCPPermission(ctx context.Context, sessionID, mcpID string) error {
	uc, ok := identity.FromContext(ctx)
	if !ok {
		return gwerrors.New(gwerrors.AuthMissing, "no authenticated user in context")
	}
	allowed, err := p.perms.AllowedMCPs(ctx, uc.Role)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Internal, "mcp_permission_check lookup failed", err)
	}
	has := contains(allowed, mcpID)
	p.emit(sessionID, uc.UserID, StageMCPPermissionCheck, has, map[string]interface{}{"mcp_id": mcpID})
	if !has {
		return gwerrors.New(gwerrors.PermissionDenied, "role not permitted to use mcp "+mcpID)
	}
	return nil
}

// FilterTools runs the tool_filter stage, narrowing the tool catalog
// offered to the LLM down to what the caller's role may invoke.
func (p *Pipeline) FilterTools(ctx context.Context, sessionID string, toolNames []string) ([]string, error) {
	uc, ok := identity.FromContext(ctx)
	if !ok {
		return nil, gwerrors.New(gwerrors.AuthMissing, "no authenticated user in context")
	}
	filtered, err := p.perms.AllowedTools(ctx, uc.Role, toolNames)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Internal, "tool_filter lookup failed", err)
	}
	p.emit(sessionID, uc.UserID, StageToolFilter, true, map[string]interface{}{
		"requested": len(toolNames), "allowed": len(filtered),
	})
	return filtered, nil
}

func (p *Pipeline) emit(sessionID, userID, stage string, allowed bool, extra map[string]interface{}) {
	if p.tracker == nil {
		return
	}
	payload := map[string]interface{}{"user_id": userID, "allowed": allowed}
	for k, v := range extra {
		payload[k] = v
	}
	p.tracker.Record(sessionID, "", stage, payload, time.Now())
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
