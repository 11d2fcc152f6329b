package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collector is the append-only recorder for one turn. It runs two clocks:
// message-level (first step start to final completion) and step-level (one
// per AICallRecord). Tool calls are recorded independently of steps and
// cross-referenced via StepIndex.
//
// All methods are safe for concurrent use; a step may run several tool
// executors at once.
type Collector struct {
	mu sync.Mutex

	startedAt    time.Time
	completedAt  time.Time
	firstTokenAt *time.Time

	aiCalls   []AICallRecord
	toolCalls []ToolCallRecord
	toolIndex map[string]int // call id -> index into toolCalls
	errors    []string

	wasCancelled    bool
	maxStepsReached bool
	ended           bool
}

// NewCollector creates a collector and starts the message-level clock.
func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
		toolIndex: make(map[string]int),
	}
}

// StartAICall opens a new step record and returns its index.
func (c *Collector) StartAICall(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.aiCalls)
	c.aiCalls = append(c.aiCalls, AICallRecord{
		Index:     idx,
		Model:     model,
		StartedAt: time.Now(),
	})
	return idx
}

// RecordFirstToken stamps the current step's first-token time and, if unset,
// the message-level time to first token.
func (c *Collector) RecordFirstToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if c.firstTokenAt == nil {
		c.firstTokenAt = &now
	}
	if cur := c.openAICall(); cur != nil && cur.FirstTokenAt == nil {
		cur.FirstTokenAt = &now
	}
}

// RecordTextDelta increments the current step's text delta counter.
func (c *Collector) RecordTextDelta() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.openAICall(); cur != nil {
		cur.TextDeltaCount++
	}
}

// RecordReasoningDelta increments the current step's reasoning delta counter.
func (c *Collector) RecordReasoningDelta() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.openAICall(); cur != nil {
		cur.ReasoningDeltaCount++
	}
}

// EndAICall closes the step at index with its finish reason and usage.
// A non-nil err is recorded on the step only; session-level errors go
// through AddError, which keeps a failed step from being counted twice.
func (c *Collector) EndAICall(index int, finishReason string, usage *TokenUsage, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.aiCalls) {
		return
	}
	rec := &c.aiCalls[index]
	rec.CompletedAt = time.Now()
	rec.FinishReason = finishReason
	rec.Usage = usage
	if err != nil {
		rec.Error = err.Error()
	}
}

// ToolCallOptions carries optional metadata for StartToolCall.
type ToolCallOptions struct {
	ConsentRequired    bool
	IsExternal         bool
	ExternalSourceName string
}

// StartToolCall opens a tool call record and returns its id. The record and
// the most recent step cross-reference each other; tools dispatch after the
// step's stream has already closed, so the step need not still be open.
func (c *Collector) StartToolCall(toolName, input string, opts ToolCallOptions) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	stepIndex := len(c.aiCalls) - 1
	if stepIndex < 0 {
		stepIndex = 0
	}
	c.toolIndex[id] = len(c.toolCalls)
	c.toolCalls = append(c.toolCalls, ToolCallRecord{
		ID:                 id,
		ToolName:           toolName,
		Status:             ToolCallRunning,
		Input:              input,
		StartedAt:          time.Now(),
		ConsentRequired:    opts.ConsentRequired,
		StepIndex:          stepIndex,
		IsExternal:         opts.IsExternal,
		ExternalSourceName: opts.ExternalSourceName,
	})
	if stepIndex < len(c.aiCalls) {
		rec := &c.aiCalls[stepIndex]
		rec.ToolCallIDs = append(rec.ToolCallIDs, id)
	}
	return id
}

// RecordConsentDecision stores the decision made for a pending tool call.
func (c *Collector) RecordConsentDecision(id, decision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.toolIndex[id]; ok {
		c.toolCalls[i].ConsentDecision = decision
	}
}

// EndToolCall closes a tool call with its terminal status. Unknown ids are
// ignored; the collector is not the source of truth for execution.
func (c *Collector) EndToolCall(id string, status ToolCallStatus, output string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.toolIndex[id]
	if !ok {
		return
	}
	rec := &c.toolCalls[i]
	if rec.Status != ToolCallRunning {
		return
	}
	rec.Status = status
	rec.Output = output
	rec.CompletedAt = time.Now()
	if err != nil {
		rec.Error = err.Error()
	}
}

// AddError appends a session-level error.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err.Error())
}

// SetMaxStepsReached marks that the turn hit the hard step cap.
func (c *Collector) SetMaxStepsReached() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxStepsReached = true
}

// EndMessage stops the message-level clock and closes any still-open step
// or tool call with a cancelled status. No record may remain open once the
// turn ends. Safe to call more than once; only the first call has effect.
func (c *Collector) EndMessage(wasCancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	c.wasCancelled = wasCancelled
	c.completedAt = time.Now()

	for i := range c.aiCalls {
		if c.aiCalls[i].CompletedAt.IsZero() {
			c.aiCalls[i].CompletedAt = c.completedAt
			if c.aiCalls[i].FinishReason == "" {
				c.aiCalls[i].FinishReason = "cancelled"
			}
		}
	}
	for i := range c.toolCalls {
		if c.toolCalls[i].Status == ToolCallRunning {
			c.toolCalls[i].Status = ToolCallCancelled
			c.toolCalls[i].CompletedAt = c.completedAt
		}
	}
}

// AggregatedTokenUsage sums usage across all steps. Returns nil when no
// step reported usage, to distinguish "no data" from "zero tokens".
func (c *Collector) AggregatedTokenUsage() *TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregateLocked()
}

func (c *Collector) aggregateLocked() *TokenUsage {
	var total *TokenUsage
	for i := range c.aiCalls {
		u := c.aiCalls[i].Usage
		if u == nil {
			continue
		}
		if total == nil {
			total = &TokenUsage{}
		}
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.TotalTokens += u.InputTokens + u.OutputTokens
		if u.CachedInputTokens != nil {
			if total.CachedInputTokens == nil {
				total.CachedInputTokens = new(int)
			}
			*total.CachedInputTokens += *u.CachedInputTokens
		}
	}
	return total
}

// Summary produces the final read-only aggregation for the turn.
// Call after EndMessage; calling earlier yields a snapshot with an
// unset completion time.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	usage := c.aggregateLocked()
	var cacheRatio *float64
	if usage != nil && usage.CachedInputTokens != nil && usage.InputTokens > 0 {
		r := float64(*usage.CachedInputTokens) / float64(usage.InputTokens)
		cacheRatio = &r
	}

	aiCalls := make([]AICallRecord, len(c.aiCalls))
	copy(aiCalls, c.aiCalls)
	toolCalls := make([]ToolCallRecord, len(c.toolCalls))
	copy(toolCalls, c.toolCalls)
	errs := make([]string, len(c.errors))
	copy(errs, c.errors)

	return Summary{
		AICalls:   aiCalls,
		ToolCalls: toolCalls,
		Errors:    errs,
		Timing: Timing{
			StartedAt:    c.startedAt,
			CompletedAt:  c.completedAt,
			FirstTokenAt: c.firstTokenAt,
		},
		TokenUsage:      usage,
		CacheHitRatio:   cacheRatio,
		WasCancelled:    c.wasCancelled,
		MaxStepsReached: c.maxStepsReached,
	}
}

// openAICall returns the most recent step record if it is still open.
// Caller must hold the mutex.
func (c *Collector) openAICall() *AICallRecord {
	if len(c.aiCalls) == 0 {
		return nil
	}
	cur := &c.aiCalls[len(c.aiCalls)-1]
	if !cur.CompletedAt.IsZero() {
		return nil
	}
	return cur
}

// String renders a one-line description, useful in debug logs.
func (c *Collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("collector{steps=%d toolCalls=%d errors=%d}", len(c.aiCalls), len(c.toolCalls), len(c.errors))
}
