package chat

import (
	"sync"

	"github.com/kubilitics/gatewayd/internal/cost"
	"github.com/kubilitics/gatewayd/internal/llm/types"
)

// Session is one chat session's live state: its rolling conversation
// history, the identity it runs under, and the token/tool accounting the
// engine needs at session end to compute cost and write the audit record.
//
// gatewayd treats "session" as the unit of conversation identity — one
// session per connected client (WS) or per /ask/stream call — rather than
// persisting a separate long-lived conversation entity the way the
// teacher's ConversationStore did. History lives only as long as the
// session.
type Session struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string
	Provider       string

	mu              sync.Mutex
	history         []types.Message
	toolInvocations []cost.ToolInvocation
	inputTokens     int
	outputTokens    int
}

// newSession creates a session whose ConversationID defaults to its own
// ID (the common case: one session is one conversation).
func newSession(id, userID, role, provider string) *Session {
	return &Session{
		ID:             id,
		ConversationID: id,
		UserID:         userID,
		Role:           role,
		Provider:       provider,
		history:        make([]types.Message, 0, 8),
	}
}

func (s *Session) appendMessage(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

func (s *Session) messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) recordToolInvocation(toolName, mcpID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolInvocations = append(s.toolInvocations, cost.ToolInvocation{ToolName: toolName, MCPName: mcpID})
}

func (s *Session) addTokens(input, output int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputTokens += input
	s.outputTokens += output
}

func (s *Session) snapshot() (int, int, []cost.ToolInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := make([]cost.ToolInvocation, len(s.toolInvocations))
	copy(tools, s.toolInvocations)
	return s.inputTokens, s.outputTokens, tools
}

// Usage exposes the session's running token/tool totals so a transport
// can report incremental cost in a per-message "done" frame without
// waiting for EndSession.
func (s *Session) Usage() (inputTokens, outputTokens int, tools []cost.ToolInvocation) {
	return s.snapshot()
}
