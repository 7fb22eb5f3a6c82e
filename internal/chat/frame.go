package chat

// FrameSink is the transport-agnostic output side of a chat session: the
// engine never touches a websocket.Conn or an http.ResponseWriter
// directly, it only writes Frames to a sink. internal/server supplies one
// implementation per transport (WS full-duplex, SSE/HTTP stream) so the
// same engine logic drives both without caring which one is attached.

import (
	"time"

	"github.com/kubilitics/gatewayd/internal/llm/types"
)

// FrameKind identifies what a Frame carries.
type FrameKind string

const (
	FrameText     FrameKind = "text"
	FrameTool     FrameKind = "tool"
	FrameError    FrameKind = "error"
	FrameComplete FrameKind = "complete"
	FrameWarning  FrameKind = "warning"
)

// Frame is one unit of output the chat engine emits during a session.
// Exactly one of Text/Tool/Err/Warning is populated depending on Kind.
type Frame struct {
	Kind      FrameKind        `json:"type"`
	Text      string           `json:"content,omitempty"`
	Tool      *types.ToolEvent `json:"tool,omitempty"`
	Err       string           `json:"error,omitempty"`
	Warning   string           `json:"warning,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// FrameSink receives Frames from the engine. Send must be safe to call
// from the goroutine driving the agentic loop; implementations that write
// to a shared connection (e.g. a *websocket.Conn) must serialize writes
// internally.
type FrameSink interface {
	Send(f Frame) error
}

// FrameSinkFunc adapts a plain function to FrameSink.
type FrameSinkFunc func(f Frame) error

func (fn FrameSinkFunc) Send(f Frame) error { return fn(f) }

func textFrame(token string) Frame {
	return Frame{Kind: FrameText, Text: token, Timestamp: time.Now()}
}

func toolFrame(evt *types.ToolEvent) Frame {
	return Frame{Kind: FrameTool, Tool: evt, Timestamp: time.Now()}
}

func errorFrame(err error) Frame {
	return Frame{Kind: FrameError, Err: err.Error(), Timestamp: time.Now()}
}

func warningFrame(msg string) Frame {
	return Frame{Kind: FrameWarning, Warning: msg, Timestamp: time.Now()}
}

func completeFrame() Frame {
	return Frame{Kind: FrameComplete, Timestamp: time.Now()}
}
