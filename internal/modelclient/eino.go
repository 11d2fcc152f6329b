package modelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/telemetry"
)

// EinoConfig configures the eino-backed client.
type EinoConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// EinoClient adapts an eino tool-calling chat model to the Client interface.
type EinoClient struct {
	model model.ToolCallingChatModel
	name  string
}

// NewEinoClient builds a client over the OpenAI-compatible eino adapter.
func NewEinoClient(ctx context.Context, cfg EinoConfig) (*EinoClient, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &EinoClient{model: cm, name: cfg.Model}, nil
}

// NewEinoClientFromModel wraps an already constructed eino model.
func NewEinoClientFromModel(m model.ToolCallingChatModel, name string) *EinoClient {
	return &EinoClient{model: m, name: name}
}

func (c *EinoClient) Model() string {
	return c.name
}

func (c *EinoClient) Stream(ctx context.Context, system string, msgs []history.Message, tools []ToolSpec) (<-chan Event, error) {
	m := c.model
	if len(tools) > 0 {
		infos, err := toolInfos(tools)
		if err != nil {
			return nil, err
		}
		bound, err := c.model.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		m = bound
	}

	reader, err := m.Stream(ctx, toSchemaMessages(system, msgs))
	if err != nil {
		return nil, fmt.Errorf("failed to open model stream: %w", err)
	}

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		defer reader.Close()
		pump(ctx, reader, ch)
	}()
	return ch, nil
}

// stagedCall accumulates one tool call's streamed fragments.
type stagedCall struct {
	id   string
	name string
	args string
}

// pump translates eino message chunks into the event vocabulary. Tool call
// fragments are keyed by provider index and emitted as a complete call only
// once the stream ends. Every send observes ctx so an abandoned consumer
// cannot strand the goroutine on a full channel.
func pump(ctx context.Context, reader *schema.StreamReader[*schema.Message], ch chan<- Event) {
	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	staged := make(map[int]*stagedCall)
	var order []int
	finishReason := "stop"
	var usage *telemetry.TokenUsage

	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			send(Event{Type: EventError, Err: err})
			return
		}

		if chunk.ReasoningContent != "" {
			if !send(Event{Type: EventReasoningDelta, Text: chunk.ReasoningContent}) {
				return
			}
		}
		if chunk.Content != "" {
			if !send(Event{Type: EventTextDelta, Text: chunk.Content}) {
				return
			}
		}

		for i, tc := range chunk.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := staged[idx]
			if !ok {
				call = &stagedCall{}
				staged[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" && call.name == "" {
				call.name = tc.Function.Name
				if !send(Event{Type: EventToolInputStart, CallID: call.id, ToolName: call.name}) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				call.args += tc.Function.Arguments
				if !send(Event{Type: EventToolInputDelta, CallID: call.id, ToolName: call.name, ArgsDelta: tc.Function.Arguments}) {
					return
				}
			}
		}

		if chunk.ResponseMeta != nil {
			if chunk.ResponseMeta.FinishReason != "" {
				finishReason = chunk.ResponseMeta.FinishReason
			}
			if u := chunk.ResponseMeta.Usage; u != nil {
				usage = &telemetry.TokenUsage{
					InputTokens:  u.PromptTokens,
					OutputTokens: u.CompletionTokens,
					TotalTokens:  u.TotalTokens,
				}
			}
		}
	}

	for _, idx := range order {
		call := staged[idx]
		if call.name == "" {
			logger.Warn("dropping tool call fragment with no name (index %d)", idx)
			continue
		}
		args := call.args
		if args == "" {
			args = "{}"
		}
		if !send(Event{Type: EventToolCall, CallID: call.id, ToolName: call.name, Args: json.RawMessage(args)}) {
			return
		}
	}
	send(Event{Type: EventFinish, FinishReason: finishReason, Usage: usage})
}

// toSchemaMessages flattens the part-based history into eino messages.
func toSchemaMessages(system string, msgs []history.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, schema.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case history.RoleAssistant:
			var text string
			var calls []schema.ToolCall
			for _, p := range m.Parts {
				switch p.Type {
				case history.PartText:
					text += p.Text
				case history.PartToolCall:
					calls = append(calls, schema.ToolCall{
						ID:       p.ToolCallID,
						Type:     "function",
						Function: schema.FunctionCall{Name: p.ToolName, Arguments: p.Args},
					})
				}
			}
			out = append(out, schema.AssistantMessage(text, calls))
			for _, p := range m.Parts {
				if p.Type == history.PartToolResult {
					out = append(out, schema.ToolMessage(p.Result, p.ToolCallID, schema.WithToolName(p.ToolName)))
				}
			}
		case history.RoleTool:
			for _, p := range m.Parts {
				if p.Type == history.PartToolResult {
					out = append(out, schema.ToolMessage(p.Result, p.ToolCallID, schema.WithToolName(p.ToolName)))
				}
			}
		default:
			var text string
			for _, p := range m.Parts {
				if p.Type == history.PartText {
					text += p.Text
				}
			}
			out = append(out, schema.UserMessage(text))
		}
	}
	return out
}

// toolInfos converts tool specs into eino tool descriptors. Schemas travel
// as OpenAPI v3 via a JSON round trip.
func toolInfos(tools []ToolSpec) ([]*schema.ToolInfo, error) {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if t.Schema != nil {
			raw, err := json.Marshal(t.Schema)
			if err != nil {
				return nil, fmt.Errorf("failed to encode schema for %s: %w", t.Name, err)
			}
			var oapi openapi3.Schema
			if err := json.Unmarshal(raw, &oapi); err != nil {
				return nil, fmt.Errorf("failed to decode schema for %s: %w", t.Name, err)
			}
			info.ParamsOneOf = schema.NewParamsOneOfByOpenAPIV3(&oapi)
		}
		out = append(out, info)
	}
	return out, nil
}
