// Package modelclient abstracts the streaming tool-calling model behind a
// small event vocabulary. The orchestrator consumes events; providers are
// plugged in behind the Client interface.
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/telemetry"
)

// EventType discriminates stream events.
type EventType string

const (
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventType = "text-delta"
	// EventReasoningDelta carries a fragment of reasoning text.
	EventReasoningDelta EventType = "reasoning-delta"
	// EventToolInputStart opens a tool call; arguments follow as deltas.
	EventToolInputStart EventType = "tool-input-start"
	// EventToolInputDelta carries a fragment of a tool call's arguments.
	EventToolInputDelta EventType = "tool-input-delta"
	// EventToolCall carries a complete tool call ready to dispatch.
	EventToolCall EventType = "tool-call"
	// EventFinish ends the step with a finish reason and token usage.
	EventFinish EventType = "finish"
	// EventError reports a fatal stream failure; it is always the last event.
	EventError EventType = "error"
)

// Event is one unit of model output within a step.
type Event struct {
	Type EventType

	// Text fragment for text-delta and reasoning-delta.
	Text string

	// Tool call fields
	CallID    string
	ToolName  string
	ArgsDelta string
	Args      json.RawMessage

	// Finish fields
	FinishReason string
	Usage        *telemetry.TokenUsage

	// Error payload for error events.
	Err error
}

// ToolSpec describes one tool offered to the model for a step.
type ToolSpec struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Client streams one model step. The returned channel is closed when the
// step ends; an error event, if any, is the final element.
type Client interface {
	Stream(ctx context.Context, system string, msgs []history.Message, tools []ToolSpec) (<-chan Event, error)
	Model() string
}
