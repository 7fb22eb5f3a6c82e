package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Chat session events
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"

	// Authorization pipeline events
	EventAuthCheck            EventType = "authz.auth_check"
	EventBlockCheck           EventType = "authz.block_check"
	EventActiveCheck          EventType = "authz.active_check"
	EventUsageCheck           EventType = "authz.usage_check"
	EventMCPPermissionCheck   EventType = "authz.mcp_permission_check"
	EventToolFilter           EventType = "authz.tool_filter"

	// MCP tool-invocation events
	EventToolInvoked  EventType = "mcp.tool_invoked"
	EventToolFailed   EventType = "mcp.tool_failed"
	EventBreakerOpen  EventType = "mcp.breaker_open"
	EventBreakerClose EventType = "mcp.breaker_close"

	// Prompt-guard events
	EventPromptGuardEvaluated  EventType = "promptguard.evaluated"
	EventPromptGuardTimeout    EventType = "promptguard.timeout"
	EventBehavioralEscalation  EventType = "promptguard.escalation"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"
	EventConfigReload  EventType = "config.reload"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventHealthCheck    EventType = "system.health_check"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Actor information
	User      string `json:"user,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`

	// Session/conversation linkage
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Action details
	Action      string                 `json:"action,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithUser sets the user who triggered the event
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithSession sets the session/conversation this event belongs to
func (e *Event) WithSession(sessionID, conversationID string) *Event {
	e.SessionID = sessionID
	e.ConversationID = conversationID
	return e
}

// WithAction sets the action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
