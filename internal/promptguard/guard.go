package promptguard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BlockSetter applies a user-level block, wired to whatever backs the
// authorization pipeline's block_check stage.
type BlockSetter interface {
	BlockUser(ctx context.Context, userID, reason string) error
}

// Guard is the chat engine's entry point into prompt safety: classify a
// message, then apply the configured behavioral-escalation ladder.
type Guard struct {
	mediator    *Mediator
	counters    *Counters
	policy      Policy
	blockSetter BlockSetter
	bypassRoles map[string]bool
	logger      *zap.Logger
}

// NewGuard builds a guard. bypassRoles lists roles (e.g. "admin") that
// skip classification entirely.
func NewGuard(mediator *Mediator, policy Policy, blockSetter BlockSetter, bypassRoles []string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	roles := make(map[string]bool, len(bypassRoles))
	for _, r := range bypassRoles {
		roles[r] = true
	}
	return &Guard{
		mediator:    mediator,
		counters:    NewCounters(policy.Window),
		policy:      policy,
		blockSetter: blockSetter,
		bypassRoles: roles,
		logger:      logger,
	}
}

// Evaluate classifies message and applies the escalation ladder if it is
// scored unsafe. Safe messages and bypass-role users return Allowed=true
// with ActionNone.
func (g *Guard) Evaluate(ctx context.Context, userID, sessionID, role, message string) Result {
	if g.bypassRoles[role] {
		return Result{Verdict: Verdict{Safe: true}, Action: ActionNone, Allowed: true}
	}

	verdict := g.mediator.Classify(ctx, userID, message)
	if verdict.Safe {
		return Result{Verdict: verdict, Action: ActionNone, Allowed: true}
	}

	count := g.counters.Increment(userID, sessionID, time.Now())
	action := Decide(count, g.policy)

	result := Result{Verdict: verdict, Action: action}
	switch action {
	case ActionWarn:
		result.Allowed = true
	case ActionBlockMessage:
		result.Allowed = false
	case ActionBlockUser:
		result.Allowed = false
		if g.blockSetter != nil {
			if err := g.blockSetter.BlockUser(ctx, userID, "prompt guard behavioral escalation: "+verdict.Reason); err != nil {
				g.logger.Error("failed to set user block flag", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return result
}

// EndSession releases session-scoped escalation state.
func (g *Guard) EndSession(sessionID string) {
	g.counters.EndSession(sessionID)
}
