// Package telemetry records per-step and per-tool-call timing, outcome and
// token usage for one turn, and aggregates them into an exportable summary
// when the turn ends.
package telemetry

import "time"

// ToolCallStatus is the lifecycle state of a recorded tool call.
type ToolCallStatus string

const (
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallSuccess   ToolCallStatus = "success"
	ToolCallFailed    ToolCallStatus = "failed"
	ToolCallDenied    ToolCallStatus = "denied"
	ToolCallCancelled ToolCallStatus = "cancelled"
)

// TokenUsage holds token counts reported by the model for one step.
// CachedInputTokens is nil when the provider reported no cache data,
// which is distinct from reporting zero cached tokens.
type TokenUsage struct {
	InputTokens       int  `json:"inputTokens"`
	OutputTokens      int  `json:"outputTokens"`
	TotalTokens       int  `json:"totalTokens"`
	CachedInputTokens *int `json:"cachedInputTokens,omitempty"`
}

// AICallRecord captures one model invocation (step) within a turn.
type AICallRecord struct {
	Index               int         `json:"index"`
	Model               string      `json:"model"`
	StartedAt           time.Time   `json:"startedAt"`
	CompletedAt         time.Time   `json:"completedAt"`
	FirstTokenAt        *time.Time  `json:"firstTokenAt,omitempty"`
	FinishReason        string      `json:"finishReason,omitempty"`
	Usage               *TokenUsage `json:"tokenUsage,omitempty"`
	ToolCallIDs         []string    `json:"toolCallIds"`
	TextDeltaCount      int         `json:"textDeltaCount"`
	ReasoningDeltaCount int         `json:"reasoningDeltaCount"`
	Error               string      `json:"error,omitempty"`
}

// ToolCallRecord captures one tool invocation. Created when the call starts
// and mutated at most twice: once for the consent decision, once for the
// terminal update.
type ToolCallRecord struct {
	ID                 string         `json:"id"`
	ToolName           string         `json:"toolName"`
	Status             ToolCallStatus `json:"status"`
	Input              string         `json:"input,omitempty"`
	Output             string         `json:"output,omitempty"`
	StartedAt          time.Time      `json:"startedAt"`
	CompletedAt        time.Time      `json:"completedAt"`
	Error              string         `json:"error,omitempty"`
	ConsentRequired    bool           `json:"consentRequired"`
	ConsentDecision    string         `json:"consentDecision,omitempty"`
	StepIndex          int            `json:"stepIndex"`
	IsExternal         bool           `json:"isExternal"`
	ExternalSourceName string         `json:"externalSourceName,omitempty"`
}

// Timing holds message-level clock readings for the turn.
type Timing struct {
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  time.Time  `json:"completedAt"`
	FirstTokenAt *time.Time `json:"firstTokenAt,omitempty"`
}

// Summary is the read-only aggregation produced once at turn end.
// It is a plain serializable record; nothing in the orchestrator depends
// on it being consumed.
type Summary struct {
	AICalls         []AICallRecord   `json:"aiCalls"`
	ToolCalls       []ToolCallRecord `json:"toolCalls"`
	Errors          []string         `json:"errors"`
	Timing          Timing           `json:"timing"`
	TokenUsage      *TokenUsage      `json:"tokenUsage,omitempty"`
	CacheHitRatio   *float64         `json:"cacheHitRatio,omitempty"`
	WasCancelled    bool             `json:"wasCancelled,omitempty"`
	MaxStepsReached bool             `json:"maxStepsReached,omitempty"`
}
