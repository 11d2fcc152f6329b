// Package tools holds the static catalog of tool definitions and wraps
// their executors with the consent gate, markup emission, and telemetry
// reporting before they are handed to the model layer.
package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
)

// ExecuteFunc runs a tool against the turn's execution environment.
// It returns the textual result surfaced to the model.
type ExecuteFunc func(ctx context.Context, ac *agent.Context, args json.RawMessage) (string, error)

// PreviewFunc renders preview markup from (possibly partial) JSON
// arguments. Implementations must be idempotent and tolerate incomplete
// input by returning "".
type PreviewFunc func(partialArgs string) string

// Definition describes one tool. Definitions are immutable and registered
// once at process start; identity is Name, which must be globally unique
// across built-in and MCP-derived tools.
type Definition struct {
	Name           string
	Description    string
	InputSchema    *jsonschema.Schema
	DefaultConsent consent.Policy
	ModifiesState  bool

	// Terminal marks a tool whose invocation ends the step loop
	// (the finalize/integration tool).
	Terminal bool

	Execute      ExecuteFunc
	BuildPreview PreviewFunc
}

// schemaFor derives a JSON schema from an argument struct. Schemas are
// inlined (no $defs) because the model-facing tool contract expects a
// self-contained object schema.
func schemaFor(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	return r.Reflect(v)
}

// tryParse decodes partial JSON into v, reporting whether the decode
// succeeded. Preview builders use it so an incomplete argument buffer
// simply yields no preview instead of an error.
func tryParse(partial string, v any) bool {
	return json.Unmarshal([]byte(partial), v) == nil
}
