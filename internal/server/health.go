package server

import (
	"fmt"
	"net/http"
	"time"
)

// handleHealth reports basic liveness: the process is up and serving.
// Written as a hand-built JSON literal rather than struct+json.Marshal,
// matching this codebase's long-standing health-endpoint convention.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// handleReady reports whether the process can actually serve chat traffic:
// the store must be reachable and an LLM provider must be configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	storeOK := s.store.Ping(r.Context()) == nil
	llmConfigured := s.cfg.LLM.Provider != "" && s.cfg.LLM.Provider != "none"

	ready := storeOK && llmConfigured
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(
		`{"ready":%t,"store_ok":%t,"llm_configured":%t,"timestamp":"%s"}`,
		ready, storeOK, llmConfigured, time.Now().Format(time.RFC3339),
	)))
}

// handleInfo reports build-stable, non-sensitive process facts: LLM
// provider in use, registered MCP count, and current breaker states.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	snapshot := s.coordinator.BreakerSnapshot()
	breakerStates := make(map[string]interface{}, len(snapshot))
	for id, state := range snapshot {
		breakerStates[id] = string(state)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"llm_provider":     s.cfg.LLM.Provider,
		"prompt_guard_on":  s.cfg.PromptGuard.Enabled,
		"registered_mcps":  len(s.cfg.Coordinator.MCPs),
		"breaker_states":   breakerStates,
		"grpc_admin_on":    s.cfg.GRPCAdmin.Enabled,
		"running":          s.IsRunning(),
	})
}
