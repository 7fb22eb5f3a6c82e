package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/kubilitics/gatewayd/internal/chat"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/identity"
)

// askStreamRequest is the POST /ask/stream request body: a single
// one-shot message, no persisted conversation identity across calls.
type askStreamRequest struct {
	Text string `json:"text"`
}

// handleAskStream serves POST /ask/stream: the same engine pipeline as
// /ws/chat, but newline-delimited-JSON over a plain HTTP response instead
// of a full-duplex socket. Exactly one session, exactly one message, one
// audit record with source "stream".
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	uc, err := identity.ExtractFromHeaders(r.Header)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req askStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := &ndjsonWriter{w: w, flusher: flusher}

	sessionID := uuid.NewString()
	sess := s.engine.StartSession(sessionID, uc.UserID, uc.Role, s.cfg.LLM.Provider)
	llmAdapter := s.llmAdapterFor(uc.UserID, sessionID)

	available := make([]string, 0)
	for mcpID := range s.coordinator.ListTools(r.Context()) {
		available = append(available, mcpID)
	}
	_ = enc.write(wireFrame{
		Type:          "welcome",
		Text:          "connected",
		Usage:         map[string]interface{}{"input_tokens": 0, "output_tokens": 0, "cost_usd": 0.0},
		AvailableMCPs: available,
	})

	sink := chat.FrameSinkFunc(func(f chat.Frame) error {
		return enc.write(s.frameToWire(f, sess))
	})

	ctx := identity.WithUserContext(r.Context(), uc)
	msgErr := s.engine.HandleMessage(ctx, sess, llmAdapter, sink, req.Text)
	success := msgErr == nil || gwerrors.KindOf(msgErr) == gwerrors.PromptUnsafe

	s.engine.EndSession(context.Background(), sess, "stream", success, "")
}

// ndjsonWriter serializes one JSON object per line and flushes after each
// write so a streaming client sees frames as they are produced.
type ndjsonWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (n *ndjsonWriter) write(f wireFrame) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := n.w.Write(b); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}
