// Package contracts defines the gRPC contract types for gatewayd's admin
// control plane.
//
// These types document the inter-service contract; in a real deployment
// they would be generated from .proto definitions, but this file documents
// the wire shape gatewayd's gRPC admin server and clients agree on.
package contracts

// EnableMonitoringRequest subscribes an admin observer to one user's flow
// events for a bounded TTL.
type EnableMonitoringRequest struct {
	UserID     string `json:"user_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// EnableMonitoringResponse confirms the subscription and its expiry.
type EnableMonitoringResponse struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// DisableMonitoringRequest cancels a monitoring subscription early.
type DisableMonitoringRequest struct {
	UserID string `json:"user_id"`
}

// ListMonitoredRequest lists all currently monitored users.
type ListMonitoredRequest struct{}

// ListMonitoredResponse returns every active monitoring registration.
type ListMonitoredResponse struct {
	UserIDs []string `json:"user_ids"`
}

// FlowQueryRequest requests archived flow events for a user or session.
type FlowQueryRequest struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Limit     int    `json:"limit"`
}

// FlowEventWire is the gRPC wire shape for one flow event.
type FlowEventWire struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	SessionID   string `json:"session_id"`
	Kind        string `json:"kind"`
	PayloadJSON string `json:"payload_json"`
	Timestamp   int64  `json:"timestamp"`
}

// FlowQueryResponse returns the matching flow events.
type FlowQueryResponse struct {
	Events []FlowEventWire `json:"events"`
	Error  string          `json:"error"`
}

// HealthCheckRequest checks gatewayd's subsystem health.
type HealthCheckRequest struct {
	Service string `json:"service"`
}

// HealthCheckResponse returns subsystem health status.
type HealthCheckResponse struct {
	Status    string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp int64             `json:"timestamp"`
	Details   map[string]string `json:"details"`
}
