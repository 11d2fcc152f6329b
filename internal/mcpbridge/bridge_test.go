package mcpbridge

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/markup"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	tools    []mcp.Tool
	listErr  error
	results  map[string]string
	callErr  error
	calls    []string
	closed   bool
}

func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.results[name], nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// injectDial routes the bridge's dialing through a scripted map of clients
// for the duration of one test.
func injectDial(t *testing.T, clients map[string]rpcClient, dialErrs map[string]error) *int {
	t.Helper()
	orig := dial
	t.Cleanup(func() { dial = orig })
	dials := 0
	dial = func(ctx context.Context, cfg SourceConfig) (rpcClient, error) {
		dials++
		if err, ok := dialErrs[cfg.Name]; ok {
			return nil, err
		}
		c, ok := clients[cfg.Name]
		if !ok {
			return nil, errors.New("no fake for " + cfg.Name)
		}
		return c, nil
	}
	return &dials
}

func TestNamespacedName(t *testing.T) {
	assert.Equal(t, "github__create_issue", NamespacedName("github", "create_issue"))
	assert.Equal(t, "my_server__read_file", NamespacedName("my-server", "read/file"))
	assert.Equal(t, "a_b__c_d", NamespacedName("a.b", "c d"))
}

func TestDiscoverNamespacesAndSkipsFailedSources(t *testing.T) {
	good := &fakeClient{tools: []mcp.Tool{
		{Name: "search", Description: "Search the index"},
		{Name: "fetch", Description: "Fetch a document"},
	}}
	listBroken := &fakeClient{listErr: errors.New("protocol error")}

	injectDial(t, map[string]rpcClient{"idx": good, "broken": listBroken},
		map[string]error{"down": errors.New("connection refused")})

	b := New([]SourceConfig{
		{Name: "idx", Transport: TransportStdio, Command: "idx-server"},
		{Name: "down", Transport: TransportHTTP, URL: "http://localhost:9"},
		{Name: "broken", Transport: TransportStdio, Command: "broken-server"},
	})
	defer b.Close()

	ext := b.Discover(context.Background())
	require.Len(t, ext, 2)
	assert.Equal(t, "idx__search", ext[0].Definition.Name)
	assert.Equal(t, "idx__fetch", ext[1].Definition.Name)
	assert.Equal(t, "idx", ext[0].SourceName)
	assert.Contains(t, ext[0].Definition.Description, "[idx]")
}

func TestDiscoverReusesConnections(t *testing.T) {
	c := &fakeClient{tools: []mcp.Tool{{Name: "ping"}}}
	dials := injectDial(t, map[string]rpcClient{"s": c}, nil)

	b := New([]SourceConfig{{Name: "s", Transport: TransportStdio, Command: "srv"}})
	defer b.Close()

	b.Discover(context.Background())
	b.Discover(context.Background())
	assert.Equal(t, 1, *dials, "second discovery must reuse the dialed connection")
}

func TestExternalToolExecutesAndEmitsResult(t *testing.T) {
	c := &fakeClient{
		tools:   []mcp.Tool{{Name: "search", Description: "Search"}},
		results: map[string]string{"search": "3 hits"},
	}
	injectDial(t, map[string]rpcClient{"idx": c}, nil)

	b := New([]SourceConfig{{Name: "idx", Transport: TransportStdio, Command: "srv"}})
	defer b.Close()
	ext := b.Discover(context.Background())
	require.Len(t, ext, 1)
	def := ext[0].Definition

	ac := agent.NewContext(t.TempDir(), "chat-1", "app-1")
	sink := markup.NewBuffer()
	ac.Sink = sink

	out, err := def.Execute(context.Background(), ac, []byte(`{"query":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "3 hits", out)
	assert.Equal(t, []string{"search"}, c.calls)

	require.Len(t, sink.Finals(), 1)
	assert.Equal(t, `<dyad-tool-result server="idx" tool="search">3 hits</dyad-tool-result>`, sink.Finals()[0])
}

func TestExternalToolCallFailureIsContained(t *testing.T) {
	c := &fakeClient{
		tools:   []mcp.Tool{{Name: "flaky"}},
		callErr: errors.New("upstream timeout"),
	}
	injectDial(t, map[string]rpcClient{"s": c}, nil)

	b := New([]SourceConfig{{Name: "s", Transport: TransportStdio, Command: "srv"}})
	defer b.Close()
	ext := b.Discover(context.Background())
	require.Len(t, ext, 1)

	ac := agent.NewContext(t.TempDir(), "chat-1", "app-1")
	_, err := ext[0].Definition.Execute(context.Background(), ac, []byte(`{}`))
	assert.ErrorContains(t, err, "upstream timeout")
}

func TestExternalToolPreviewIsToolCallBlock(t *testing.T) {
	c := &fakeClient{tools: []mcp.Tool{{Name: "search"}}}
	injectDial(t, map[string]rpcClient{"idx": c}, nil)

	b := New([]SourceConfig{{Name: "idx", Transport: TransportStdio, Command: "srv"}})
	defer b.Close()
	ext := b.Discover(context.Background())
	require.Len(t, ext, 1)

	preview := ext[0].Definition.BuildPreview(`{"query":"x"}`)
	assert.Equal(t, `<dyad-tool-call server="idx" tool="search">{"query":"x"}</dyad-tool-call>`, preview)
	assert.Empty(t, ext[0].Definition.BuildPreview(`{"query":"x`))
}

func TestCloseShutsDownClients(t *testing.T) {
	c := &fakeClient{tools: []mcp.Tool{{Name: "t"}}}
	injectDial(t, map[string]rpcClient{"s": c}, nil)

	b := New([]SourceConfig{{Name: "s", Transport: TransportStdio, Command: "srv"}})
	b.Discover(context.Background())
	require.NoError(t, b.Close())
	assert.True(t, c.closed)
}
