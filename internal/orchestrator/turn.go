package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/chatstore"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/git"
	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/markup"
	"github.com/mark3labs/agentr/internal/mcpbridge"
	"github.com/mark3labs/agentr/internal/modelclient"
	"github.com/mark3labs/agentr/internal/telemetry"
	"github.com/mark3labs/agentr/internal/tools"
)

// State is the turn lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateStreaming    State = "streaming"
	StateToolDispatch State = "tool-dispatch"
	StateClosing      State = "closing"
	StateSuccess      State = "success"
	StateCancelled    State = "cancelled"
	StateError        State = "error"
)

// Deployer pushes edited files to wherever the generated app runs. Invoked
// once at finalization with the deduplicated set of edited paths.
type Deployer interface {
	Deploy(ctx context.Context, paths []string) error
}

// TurnConfig configures one turn.
type TurnConfig struct {
	ChatID       string
	AppID        string
	RepoPath     string
	SystemPrompt string
	MaxSteps     int
	ReadOnly     bool
	AutoCommit   bool
}

// TurnDeps are the collaborators a turn runs against. Store, Bridge, and
// Deployer are optional; everything else is required.
type TurnDeps struct {
	Client   modelclient.Client
	Registry *tools.Registry
	Broker   *consent.Broker
	Store    *chatstore.Store
	Bridge   *mcpbridge.Bridge
	Deployer Deployer
	Sink     markup.Sink

	// OnText and OnReasoning observe streamed fragments (CLI printing).
	OnText      func(string)
	OnReasoning func(string)
}

// Turn executes the step loop for one user message. A Turn is single-use.
type Turn struct {
	cfg  TurnConfig
	deps TurnDeps

	agentCtx  *agent.Context
	collector *telemetry.Collector
	injector  *history.Injector
	msgs      []history.Message

	mu       sync.Mutex
	state    State
	teardown sync.Once
}

// NewTurn builds a turn. The agent context it creates is reachable via
// Agent() so transports can enqueue mid-turn messages.
func NewTurn(cfg TurnConfig, deps TurnDeps) *Turn {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 20
	}
	ac := agent.NewContext(cfg.RepoPath, cfg.ChatID, cfg.AppID)
	if deps.Sink != nil {
		ac.Sink = deps.Sink
	}
	return &Turn{
		cfg:       cfg,
		deps:      deps,
		agentCtx:  ac,
		collector: telemetry.NewCollector(),
		injector:  history.NewInjector(),
		state:     StateIdle,
	}
}

// Agent returns the turn's execution context.
func (t *Turn) Agent() *agent.Context {
	return t.agentCtx
}

// State returns the current lifecycle state.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Turn) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// stagedInput accumulates one tool call's streamed argument fragments and
// re-renders its preview as they grow.
type stagedInput struct {
	toolName string
	args     string
}

// Run executes the turn for one user message and returns the telemetry
// summary. The summary is returned for every terminal state; err reports
// cancellation or a fatal stream failure.
func (t *Turn) Run(ctx context.Context, userMessage string) (*telemetry.Summary, error) {
	t.setState(StateStreaming)

	if err := t.loadHistory(ctx); err != nil {
		return t.finish(ctx, StateError, err)
	}
	t.msgs = append(t.msgs, history.TextMessage(history.RoleUser, userMessage))

	handles, specs := t.buildToolSet(ctx)

	terminal := false
	for step := 0; step < t.cfg.MaxSteps; step++ {
		if prepared := t.injector.PrepareStep(t.msgs, t.agentCtx.DrainPendingMessages(), t.agentCtx.Todos()); prepared != nil {
			t.msgs = prepared
		}

		calls, finishReason, err := t.streamStep(ctx, step, specs, handles)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, errs.ErrTurnCancelled) {
				return t.finish(ctx, StateCancelled, errs.ErrTurnCancelled)
			}
			return t.finish(ctx, StateError, errs.NewStreamError(step, err))
		}

		if len(calls) == 0 {
			logger.Debug("step %d finished with no tool calls (%s)", step, finishReason)
			terminal = true
			break
		}

		t.setState(StateToolDispatch)
		hitTerminal, err := t.dispatch(ctx, calls, handles)
		if err != nil {
			return t.finish(ctx, StateCancelled, errs.ErrTurnCancelled)
		}
		t.setState(StateStreaming)
		if hitTerminal {
			terminal = true
			break
		}
	}

	if !terminal {
		t.collector.SetMaxStepsReached()
		t.collector.AddError(errs.ErrMaxSteps)
		logger.Warn("turn hit the step cap of %d", t.cfg.MaxSteps)
	}

	t.setState(StateClosing)
	t.finalize(ctx)
	return t.finish(ctx, StateSuccess, nil)
}

// loadHistory seeds the message list from the chat's latest snapshot.
func (t *Turn) loadHistory(ctx context.Context) error {
	if t.deps.Store == nil {
		return nil
	}
	msgs, err := t.deps.Store.LoadHistory(ctx, t.cfg.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat history: %w", err)
	}
	t.msgs = msgs
	return nil
}

// buildToolSet wraps built-in and external tools for this turn.
func (t *Turn) buildToolSet(ctx context.Context) (map[string]*tools.Handle, []modelclient.ToolSpec) {
	deps := tools.Deps{Agent: t.agentCtx, Broker: t.deps.Broker, Collector: t.collector}
	handleList := t.deps.Registry.BuildToolSet(deps, tools.BuildOptions{ReadOnly: t.cfg.ReadOnly})

	// External tools carry no mutability metadata, so a read-only turn
	// exposes none of them rather than guess which ones are safe.
	if t.deps.Bridge != nil && !t.cfg.ReadOnly {
		for _, ext := range t.deps.Bridge.Discover(ctx) {
			handleList = append(handleList, tools.WrapExternal(ext.Definition, deps, ext.SourceName))
		}
	}

	handles := make(map[string]*tools.Handle, len(handleList))
	specs := make([]modelclient.ToolSpec, 0, len(handleList))
	for _, h := range handleList {
		handles[h.Name] = h
		specs = append(specs, modelclient.ToolSpec{Name: h.Name, Description: h.Description, Schema: h.InputSchema})
	}
	return handles, specs
}

// toolCall is one complete call collected from the stream.
type toolCall struct {
	id   string
	name string
	args json.RawMessage
}

// streamStep runs one model call, persisting deltas as they arrive and
// staging tool input previews. It returns the complete tool calls to
// dispatch and the finish reason.
func (t *Turn) streamStep(ctx context.Context, step int, specs []modelclient.ToolSpec, handles map[string]*tools.Handle) ([]toolCall, string, error) {
	stepIndex := t.collector.StartAICall(t.deps.Client.Model())

	events, err := t.deps.Client.Stream(ctx, t.cfg.SystemPrompt, t.msgs, specs)
	if err != nil {
		t.collector.EndAICall(stepIndex, "", nil, err)
		return nil, "", err
	}

	staging := make(map[string]*stagedInput)
	var (
		text         string
		reasoning    string
		calls        []toolCall
		finishReason string
		usage        *telemetry.TokenUsage
		firstToken   = false
	)

	markFirst := func() {
		if !firstToken {
			t.collector.RecordFirstToken()
			firstToken = true
		}
	}

	for event := range events {
		if ctx.Err() != nil {
			return nil, "", context.Canceled
		}
		switch event.Type {
		case modelclient.EventTextDelta:
			markFirst()
			text += event.Text
			t.collector.RecordTextDelta()
			t.persistTextDelta(ctx, event.Text)
			if t.deps.OnText != nil {
				t.deps.OnText(event.Text)
			}

		case modelclient.EventReasoningDelta:
			markFirst()
			reasoning += event.Text
			t.collector.RecordReasoningDelta()
			t.persistReasoningDelta(ctx, event.Text)
			if t.deps.OnReasoning != nil {
				t.deps.OnReasoning(event.Text)
			}

		case modelclient.EventToolInputStart:
			markFirst()
			staging[event.CallID] = &stagedInput{toolName: event.ToolName}

		case modelclient.EventToolInputDelta:
			staged, ok := staging[event.CallID]
			if !ok {
				staged = &stagedInput{toolName: event.ToolName}
				staging[event.CallID] = staged
			}
			staged.args += event.ArgsDelta
			t.emitPreview(staged, handles)

		case modelclient.EventToolCall:
			calls = append(calls, toolCall{id: event.CallID, name: event.ToolName, args: event.Args})

		case modelclient.EventFinish:
			finishReason = event.FinishReason
			usage = event.Usage

		case modelclient.EventError:
			t.collector.EndAICall(stepIndex, "", nil, event.Err)
			return nil, "", event.Err
		}
	}

	if ctx.Err() != nil {
		return nil, "", context.Canceled
	}

	t.collector.EndAICall(stepIndex, finishReason, usage, nil)
	t.msgs = append(t.msgs, assistantMessage(reasoning, text, calls))
	return calls, finishReason, nil
}

// emitPreview renders the staged call's preview markup if the fragment has
// become parseable. Previews are idempotent; re-emitting a grown preview
// supersedes the previous one on the rendering surface.
func (t *Turn) emitPreview(staged *stagedInput, handles map[string]*tools.Handle) {
	if t.deps.Sink == nil {
		return
	}
	h, ok := handles[staged.toolName]
	if !ok || h.Preview == nil {
		return
	}
	if preview := h.Preview(staged.args); preview != "" {
		t.deps.Sink.EmitIncremental(preview)
	}
}

// dispatch executes the step's tool calls in order, appending result parts
// to the just-recorded assistant message. Tool failures and denials are
// model-visible results, not turn failures. Returns whether a terminal tool
// completed successfully.
func (t *Turn) dispatch(ctx context.Context, calls []toolCall, handles map[string]*tools.Handle) (bool, error) {
	hitTerminal := false
	for _, call := range calls {
		if ctx.Err() != nil {
			return false, context.Canceled
		}

		t.persistToolCall(ctx, call)

		handle, ok := handles[call.name]
		var (
			result string
			err    error
		)
		if !ok {
			err = fmt.Errorf("%w: %s", errs.ErrUnknownTool, call.name)
			t.collector.AddError(err)
		} else {
			result, err = handle.Execute(ctx, call.args)
		}

		status := telemetry.ToolCallSuccess
		if err != nil {
			if ctx.Err() != nil {
				return false, context.Canceled
			}
			switch {
			case errors.Is(err, errs.ErrConsentDenied):
				status = telemetry.ToolCallDenied
			default:
				status = telemetry.ToolCallFailed
			}
			result = fmt.Sprintf("Error: %v", err)
			logger.Debug("tool %s returned %s: %v", call.name, status, err)
		}

		t.appendToolResult(call, result)
		t.persistToolResult(ctx, call, result, string(status))

		if ok && handle.Terminal && err == nil {
			hitTerminal = true
		}
	}
	return hitTerminal, nil
}

// appendToolResult attaches a result part to the assistant message that
// carries the call.
func (t *Turn) appendToolResult(call toolCall, result string) {
	last := &t.msgs[len(t.msgs)-1]
	last.Parts = append(last.Parts, history.Part{
		Type:       history.PartToolResult,
		ToolCallID: call.id,
		ToolName:   call.name,
		Result:     result,
	})
}

// finalize runs the success-path side effects: snapshot, deploy of changed
// files, commit, and approval marker. Persistence failures degrade to logs;
// the turn still succeeds.
func (t *Turn) finalize(ctx context.Context) {
	if t.deps.Store != nil {
		if err := t.deps.Store.SaveSnapshot(ctx, t.cfg.ChatID, t.msgs); err != nil {
			logger.Warn("failed to save history snapshot: %v", err)
		}
	}

	edited := t.agentCtx.EditedPaths()
	if t.deps.Deployer != nil && len(edited) > 0 {
		err := errs.Retry(ctx, errs.DefaultRetryConfig(), func() error {
			return t.deps.Deployer.Deploy(ctx, edited)
		})
		if err != nil {
			t.collector.AddError(fmt.Errorf("deploy failed: %w", err))
			logger.Warn("deploy of %d changed files failed: %v", len(edited), err)
		}
	}

	if t.cfg.AutoCommit && len(edited) > 0 {
		message := t.agentCtx.ChatSummary()
		if message == "" {
			message = fmt.Sprintf("Agent edits (%d files)", len(edited))
		}
		if hash, err := git.CommitAll(ctx, t.cfg.RepoPath, message); err != nil {
			t.collector.AddError(fmt.Errorf("commit failed: %w", err))
			logger.Warn("auto-commit failed: %v", err)
		} else if hash != "" {
			logger.Info("committed agent edits as %s", hash)
		}
	}

	if t.deps.Store != nil {
		if err := t.deps.Store.Mark(ctx, t.cfg.ChatID, chatstore.ActionApproved, ""); err != nil {
			logger.Warn("failed to mark turn approved: %v", err)
		}
	}
}

// finish runs teardown exactly once and returns the summary. Teardown
// force-declines pending consents, closes the telemetry message, persists
// the summary, and writes the terminal marker.
func (t *Turn) finish(ctx context.Context, terminal State, cause error) (*telemetry.Summary, error) {
	var summary *telemetry.Summary
	t.teardown.Do(func() {
		if t.deps.Broker != nil {
			if n := t.deps.Broker.ForceResolveAll(consent.DecisionDecline); n > 0 {
				logger.Debug("declined %d consent requests pending at teardown", n)
			}
		}

		wasCancelled := terminal == StateCancelled
		t.collector.EndMessage(wasCancelled)
		if cause != nil && !wasCancelled {
			t.collector.AddError(cause)
		}

		// Teardown persistence must survive a cancelled request context.
		pctx := context.WithoutCancel(ctx)
		if t.deps.Store != nil {
			switch terminal {
			case StateCancelled:
				if err := t.deps.Store.Mark(pctx, t.cfg.ChatID, chatstore.ActionCancelled, "turn aborted"); err != nil {
					logger.Warn("failed to persist cancellation marker: %v", err)
				}
			case StateError:
				if err := t.deps.Store.Mark(pctx, t.cfg.ChatID, chatstore.ActionErrored, cause.Error()); err != nil {
					logger.Warn("failed to persist error marker: %v", err)
				}
			}
			s := t.collector.Summary()
			if err := t.deps.Store.SaveSummary(pctx, t.cfg.ChatID, &s); err != nil {
				logger.Warn("failed to persist turn summary: %v", err)
			}
		}
		t.setState(terminal)
	})

	s := t.collector.Summary()
	summary = &s
	return summary, cause
}

func (t *Turn) persistTextDelta(ctx context.Context, text string) {
	if t.deps.Store == nil {
		return
	}
	if err := t.deps.Store.AppendTextDelta(context.WithoutCancel(ctx), t.cfg.ChatID, text); err != nil {
		logger.Warn("failed to persist text delta: %v", err)
	}
}

func (t *Turn) persistReasoningDelta(ctx context.Context, text string) {
	if t.deps.Store == nil {
		return
	}
	if err := t.deps.Store.AppendReasoningDelta(context.WithoutCancel(ctx), t.cfg.ChatID, text); err != nil {
		logger.Warn("failed to persist reasoning delta: %v", err)
	}
}

func (t *Turn) persistToolCall(ctx context.Context, call toolCall) {
	if t.deps.Store == nil {
		return
	}
	if err := t.deps.Store.AppendToolCall(context.WithoutCancel(ctx), t.cfg.ChatID, call.id, call.name, string(call.args)); err != nil {
		logger.Warn("failed to persist tool call: %v", err)
	}
}

func (t *Turn) persistToolResult(ctx context.Context, call toolCall, result, status string) {
	if t.deps.Store == nil {
		return
	}
	if err := t.deps.Store.AppendToolResult(context.WithoutCancel(ctx), t.cfg.ChatID, call.id, call.name, result, status); err != nil {
		logger.Warn("failed to persist tool result: %v", err)
	}
}

// assistantMessage assembles the step's assistant message from streamed
// reasoning, text, and tool calls.
func assistantMessage(reasoning, text string, calls []toolCall) history.Message {
	var parts []history.Part
	if reasoning != "" {
		parts = append(parts, history.Part{Type: history.PartReasoning, Text: reasoning})
	}
	if text != "" {
		parts = append(parts, history.Part{Type: history.PartText, Text: text})
	}
	for _, c := range calls {
		parts = append(parts, history.Part{
			Type:       history.PartToolCall,
			ToolCallID: c.id,
			ToolName:   c.name,
			Args:       string(c.args),
		})
	}
	return history.Message{Role: history.RoleAssistant, Parts: parts}
}
