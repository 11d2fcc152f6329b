package mcpbridge

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// rpcClient is the slice of the MCP client surface the bridge needs.
// Narrowed to an interface so tests can substitute a scripted source.
type rpcClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// dial is a package-level var to allow test injection.
var dial = dialSource

// dialSource connects and initializes an MCP client for one configured source.
func dialSource(ctx context.Context, cfg SourceConfig) (rpcClient, error) {
	var (
		c   *mcpclient.Client
		err error
	)
	switch cfg.Transport {
	case TransportStdio:
		c, err = mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start stdio client for %s: %w", cfg.Name, err)
		}
	case TransportHTTP:
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client for %s: %w", cfg.Name, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Name, err)
		}
	default:
		return nil, fmt.Errorf("unknown transport %q for source %s", cfg.Transport, cfg.Name)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentr", Version: "dev"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", cfg.Name, err)
	}

	return &mcpGoClient{c: c}, nil
}

// mcpGoClient adapts the mcp-go client to rpcClient.
type mcpGoClient struct {
	c *mcpclient.Client
}

func (m *mcpGoClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := m.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (m *mcpGoClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := m.c.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	text := flattenContent(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", name, text)
	}
	return text, nil
}

func (m *mcpGoClient) Close() error {
	return m.c.Close()
}

// flattenContent joins the text parts of a tool result. Non-text content is
// summarized by type rather than dropped silently.
func flattenContent(content []mcp.Content) string {
	var out string
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			out += v.Text
		case mcp.ImageContent:
			out += fmt.Sprintf("[image content: %s]", v.MIMEType)
		default:
			out += fmt.Sprintf("[%T content]", c)
		}
	}
	return out
}
