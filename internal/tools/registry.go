package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/telemetry"
)

// nameRe is the tool-name contract required by the model SDK.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registry is the single source of truth for valid tool names. Unknown or
// duplicate names are configuration errors surfaced at registration time,
// never at runtime.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition, failing fast on invalid configuration.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("%w: tool definition missing name", errs.ErrInvalidInput)
	}
	if !nameRe.MatchString(def.Name) {
		return fmt.Errorf("%w: tool name %q does not match ^[A-Za-z0-9_]+$", errs.ErrInvalidInput, def.Name)
	}
	if def.Execute == nil {
		return fmt.Errorf("%w: tool %q has no executor", errs.ErrInvalidInput, def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: duplicate tool name %q", errs.ErrInvalidInput, def.Name)
	}
	if def.DefaultConsent == "" {
		def.DefaultConsent = consent.PolicyAsk
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister registers a definition or panics; used for the built-in set
// whose validity is a compile-time concern.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Handle is a wrapped tool ready to hand to the model layer. Its executor
// already applies the consent gate, preview markup, and telemetry.
type Handle struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Terminal    bool
	Execute     func(ctx context.Context, args json.RawMessage) (string, error)

	// Preview builds a non-authoritative markup preview from partially
	// streamed arguments; empty when the tool has none or the fragment is
	// not yet parseable.
	Preview func(partialArgs string) string
}

// BuildOptions configures BuildToolSet.
type BuildOptions struct {
	// ReadOnly filters out any tool that modifies state.
	ReadOnly bool
}

// Deps are the collaborators every wrapped executor reports to.
type Deps struct {
	Agent     *agent.Context
	Broker    *consent.Broker
	Collector *telemetry.Collector
}

// BuildToolSet wraps every registered definition for one turn. Each wrapped
// executor: gates on consent when the tool's effective policy is "ask",
// emits the authoritative preview markup before execution, and reports the
// outcome to the session data collector. Failures inside the executor are
// captured and re-thrown as ToolError so the model sees them as tool
// failures it can react to.
func (r *Registry) BuildToolSet(deps Deps, opts BuildOptions) []*Handle {
	handles := make([]*Handle, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		if opts.ReadOnly && def.ModifiesState {
			continue
		}
		handles = append(handles, wrap(def, deps, false, ""))
	}
	return handles
}

// WrapExternal wraps an MCP-derived definition with the same gate and
// reporting as built-in tools, tagging records with the source name.
func WrapExternal(def *Definition, deps Deps, sourceName string) *Handle {
	return wrap(def, deps, true, sourceName)
}

func wrap(def *Definition, deps Deps, isExternal bool, sourceName string) *Handle {
	h := &Handle{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Terminal:    def.Terminal,
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return runWrapped(ctx, def, deps, isExternal, sourceName, args)
		},
	}
	if def.BuildPreview != nil {
		h.Preview = def.BuildPreview
	}
	return h
}

func runWrapped(ctx context.Context, def *Definition, deps Deps, isExternal bool, sourceName string, args json.RawMessage) (string, error) {
	preview := ""
	if def.BuildPreview != nil {
		preview = def.BuildPreview(string(args))
	}

	consentRequired := def.ModifiesState && def.DefaultConsent != consent.PolicyAlways
	id := deps.Collector.StartToolCall(def.Name, string(args), telemetry.ToolCallOptions{
		ConsentRequired:    consentRequired,
		IsExternal:         isExternal,
		ExternalSourceName: sourceName,
	})

	if def.ModifiesState && deps.Broker != nil {
		ok, err := deps.Broker.Require(ctx, def.Name, def.Description, preview, def.DefaultConsent)
		if err != nil {
			deps.Collector.EndToolCall(id, telemetry.ToolCallCancelled, "", err)
			return "", err
		}
		if !ok {
			deps.Collector.RecordConsentDecision(id, string(consent.DecisionDecline))
			denial := errs.NewDeniedError(def.Name)
			deps.Collector.EndToolCall(id, telemetry.ToolCallDenied, "", denial)
			return "", denial
		}
		if consentRequired {
			deps.Collector.RecordConsentDecision(id, "accept")
		}
	}

	// The final preview is authoritative and precedes execution.
	if preview != "" && deps.Agent != nil && deps.Agent.Sink != nil {
		deps.Agent.Sink.EmitFinal(preview)
	}

	out, err := errs.RecoverWithResult(func() (string, error) {
		return def.Execute(ctx, deps.Agent, args)
	})
	if err != nil {
		logger.Debug("tool %s failed: %v", def.Name, err)
		toolErr := errs.NewToolError(def.Name, err)
		deps.Collector.EndToolCall(id, telemetry.ToolCallFailed, "", toolErr)
		return "", toolErr
	}

	deps.Collector.EndToolCall(id, telemetry.ToolCallSuccess, out, nil)
	return out, nil
}
