// Package history owns the canonical message list for a turn and the
// re-splicing of mid-turn injected messages into it before each step.
package history

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part types used by the providers we target.
const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartImage      = "image"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// Part is one content block within a message.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// Tool call/result fields
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Args       string `json:"args,omitempty"`
	Result     string `json:"result,omitempty"`

	// Image payload (e.g. produced by a tool mid-turn)
	ImageURL string `json:"imageUrl,omitempty"`

	// ProviderID is a transient identifier attached by some providers.
	// It must be stripped before the list is sent back downstream.
	ProviderID string `json:"providerId,omitempty"`
}

// Message is one entry in the step history.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextMessage builds a single-part text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}

// Todo is one item on the turn's todo list, maintained by the
// update_todo_list tool and reported in the reminder message.
type Todo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// clone returns a deep copy of the message list so prepare never mutates
// the caller's slice.
func clone(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		parts := make([]Part, len(m.Parts))
		copy(parts, m.Parts)
		out[i] = Message{Role: m.Role, Parts: parts}
	}
	return out
}

// endsMidToolCall reports whether the last message ends on a tool call
// without a following result, i.e. the model is still mid-tool-call.
func endsMidToolCall(msgs []Message) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	if len(last.Parts) == 0 {
		return false
	}
	return last.Parts[len(last.Parts)-1].Type == PartToolCall
}
