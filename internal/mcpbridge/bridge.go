// Package mcpbridge connects configured external MCP servers and projects
// their tools into the registry's definition shape. External tools are
// namespaced by source so two servers exposing the same tool name cannot
// collide, and every call is contained: a failing source degrades that
// source's tools without affecting the rest of the turn.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/markup"
	"github.com/mark3labs/agentr/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport selects how the bridge reaches a source.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// SourceConfig describes one external MCP server.
type SourceConfig struct {
	Name      string    `yaml:"name"`
	Transport Transport `yaml:"transport"`

	// Stdio transport
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"`

	// HTTP transport
	URL string `yaml:"url,omitempty"`
}

// ExternalTool pairs a registry definition with the source it came from.
type ExternalTool struct {
	SourceName string
	Definition *tools.Definition
}

// Bridge manages connections to configured sources. Connections are dialed
// lazily on first discovery and reused for the life of the bridge.
type Bridge struct {
	configs []SourceConfig

	mu      sync.Mutex
	clients map[string]rpcClient
}

// New creates a bridge for the given source configs. No connections are made
// until Discover runs.
func New(configs []SourceConfig) *Bridge {
	return &Bridge{
		configs: configs,
		clients: make(map[string]rpcClient),
	}
}

// Discover dials every configured source that is not yet connected and
// returns the full external tool catalog. A source that fails to dial or
// list is logged and skipped; its tools are simply absent this turn.
func (b *Bridge) Discover(ctx context.Context) []ExternalTool {
	var out []ExternalTool
	for _, cfg := range b.configs {
		client, err := b.clientFor(ctx, cfg)
		if err != nil {
			logger.Warn("mcp source %s unavailable: %v", cfg.Name, err)
			continue
		}
		listed, err := client.ListTools(ctx)
		if err != nil {
			logger.Warn("mcp source %s tool listing failed: %v", cfg.Name, err)
			continue
		}
		for _, t := range listed {
			out = append(out, ExternalTool{
				SourceName: cfg.Name,
				Definition: b.definitionFor(cfg.Name, client, t),
			})
		}
		logger.Debug("mcp source %s contributed %d tools", cfg.Name, len(listed))
	}
	return out
}

func (b *Bridge) clientFor(ctx context.Context, cfg SourceConfig) (rpcClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[cfg.Name]; ok {
		return c, nil
	}
	c, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.clients[cfg.Name] = c
	return c, nil
}

// definitionFor projects one remote tool into a registry definition. The
// namespaced name satisfies the registry's name contract even when the
// remote name does not.
func (b *Bridge) definitionFor(sourceName string, client rpcClient, t mcp.Tool) *tools.Definition {
	name := NamespacedName(sourceName, t.Name)
	remoteName := t.Name

	return &tools.Definition{
		Name:           name,
		Description:    fmt.Sprintf("[%s] %s", sourceName, t.Description),
		InputSchema:    convertSchema(t.InputSchema),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			if !json.Valid([]byte(partial)) {
				return ""
			}
			return markup.ToolCall(sourceName, remoteName, partial)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var args map[string]any
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
				}
			}
			result, err := client.CallTool(ctx, remoteName, args)
			if err != nil {
				return "", err
			}
			if ac != nil && ac.Sink != nil {
				ac.Sink.EmitFinal(markup.ToolResult(sourceName, remoteName, result))
			}
			return result, nil
		},
	}
}

// Close shuts down every dialed connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, c := range b.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close mcp source %s: %w", name, err)
		}
		delete(b.clients, name)
	}
	return firstErr
}

// NamespacedName builds the registry-safe name for an external tool.
func NamespacedName(source, tool string) string {
	return sanitize(source) + "__" + sanitize(tool)
}

// sanitize maps arbitrary source and tool names onto the registry's
// ^[A-Za-z0-9_]+$ contract.
func sanitize(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// convertSchema re-encodes the remote tool's input schema into the shape the
// registry carries for built-in tools.
func convertSchema(in mcp.ToolInputSchema) *jsonschema.Schema {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}
