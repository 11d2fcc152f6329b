package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/markup"
	"github.com/mark3labs/agentr/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExecute(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
	return "ok", nil
}

func TestRegisterFailsFastOnInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{"missing name", &Definition{Execute: noopExecute}},
		{"bad characters", &Definition{Name: "bad-name!", Execute: noopExecute}},
		{"no executor", &Definition{Name: "fine_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.def)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{Name: "write_file", Execute: noopExecute}))
	err := r.Register(&Definition{Name: "write_file", Execute: noopExecute})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestBuiltinRegistryIsValid(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	names := r.Names()
	assert.Contains(t, names, "write_file")
	assert.Contains(t, names, "finalize")

	def, ok := r.Get("finalize")
	require.True(t, ok)
	assert.True(t, def.Terminal)
}

// testDeps builds a Deps with a real policy store, a broker answering via
// the given decision, and a buffering markup sink.
func testDeps(t *testing.T, repo string, decision consent.Decision) (Deps, *markup.Buffer) {
	t.Helper()
	store, err := consent.OpenPolicyStore(filepath.Join(t.TempDir(), "consent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	requests := make(chan consent.Request, 4)
	broker := consent.NewBroker(store, func(r consent.Request) error {
		requests <- r
		return nil
	})
	go func() {
		for req := range requests {
			broker.Resolve(req.RequestID, decision)
		}
	}()

	ac := agent.NewContext(repo, "chat-1", "app-1")
	sink := markup.NewBuffer()
	ac.Sink = sink

	return Deps{Agent: ac, Broker: broker, Collector: telemetry.NewCollector()}, sink
}

func findHandle(t *testing.T, handles []*Handle, name string) *Handle {
	t.Helper()
	for _, h := range handles {
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("handle %q not found", name)
	return nil
}

func TestReadOnlyFiltersStateMutatingTools(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	deps, _ := testDeps(t, t.TempDir(), consent.DecisionAcceptOnce)

	handles := r.BuildToolSet(deps, BuildOptions{ReadOnly: true})
	var names []string
	for _, h := range handles {
		names = append(names, h.Name)
	}
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "list_files")
	assert.NotContains(t, names, "write_file")
	assert.NotContains(t, names, "delete_file")
	assert.NotContains(t, names, "execute_sql")
}

func TestWriteFileAlwaysConsentEmitsMarkupAndSucceeds(t *testing.T) {
	// End-to-end property: write_file has defaultConsent "always", so no
	// round trip happens, a dyad-write block is emitted, and the record
	// ends in success.
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	repo := t.TempDir()

	store, err := consent.OpenPolicyStore(filepath.Join(t.TempDir(), "consent.db"))
	require.NoError(t, err)
	defer store.Close()
	broker := consent.NewBroker(store, func(consent.Request) error {
		t.Fatal("write_file must not issue a consent round trip")
		return nil
	})

	ac := agent.NewContext(repo, "chat-1", "app-1")
	sink := markup.NewBuffer()
	ac.Sink = sink
	collector := telemetry.NewCollector()
	collector.StartAICall("test-model")

	handles := r.BuildToolSet(Deps{Agent: ac, Broker: broker, Collector: collector}, BuildOptions{})
	write := findHandle(t, handles, "write_file")

	out, err := write.Execute(context.Background(), json.RawMessage(`{"path":"a.ts","content":"x"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "a.ts")

	require.Len(t, sink.Finals(), 1)
	assert.Equal(t, `<dyad-write path="a.ts">x</dyad-write>`, sink.Finals()[0])

	summary := collector.Summary()
	require.Len(t, summary.ToolCalls, 1)
	assert.Equal(t, telemetry.ToolCallSuccess, summary.ToolCalls[0].Status)
	assert.Equal(t, 1, ac.EditCount("a.ts"))
}

func TestDeclinedDeleteThrowsDenialAndLeavesFile(t *testing.T) {
	// End-to-end property: delete_file defaults to "ask"; a decline from
	// the approval surface yields a denial error, a denied record, and no
	// filesystem mutation.
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	repo := t.TempDir()
	target := filepath.Join(repo, "keep.ts")
	require.NoError(t, writeTestFile(target, "content"))

	deps, _ := testDeps(t, repo, consent.DecisionDecline)
	deps.Collector.StartAICall("test-model")

	handles := r.BuildToolSet(deps, BuildOptions{})
	del := findHandle(t, handles, "delete_file")

	_, err = del.Execute(context.Background(), json.RawMessage(`{"path":"keep.ts"}`))
	assert.ErrorIs(t, err, errs.ErrConsentDenied)

	summary := deps.Collector.Summary()
	require.Len(t, summary.ToolCalls, 1)
	assert.Equal(t, telemetry.ToolCallDenied, summary.ToolCalls[0].Status)
	assert.Equal(t, "decline", summary.ToolCalls[0].ConsentDecision)
	assert.FileExists(t, target)
}

func TestExecutorFailureBecomesToolError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{
		Name: "exploding_tool",
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			panic("boom")
		},
	}))
	deps, _ := testDeps(t, t.TempDir(), consent.DecisionAcceptOnce)
	deps.Collector.StartAICall("test-model")

	handles := r.BuildToolSet(deps, BuildOptions{})
	h := findHandle(t, handles, "exploding_tool")

	_, err := h.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, errs.IsToolError(err), "panic must surface as a recoverable ToolError")

	summary := deps.Collector.Summary()
	require.Len(t, summary.ToolCalls, 1)
	assert.Equal(t, telemetry.ToolCallFailed, summary.ToolCalls[0].Status)
	assert.Contains(t, summary.ToolCalls[0].Error, "boom")
}

func TestAcceptOnceAllowsMutatingTool(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "old.ts"), "x"))

	deps, sink := testDeps(t, repo, consent.DecisionAcceptOnce)
	deps.Collector.StartAICall("test-model")

	handles := r.BuildToolSet(deps, BuildOptions{})
	rename := findHandle(t, handles, "rename_file")

	out, err := rename.Execute(context.Background(), json.RawMessage(`{"from":"old.ts","to":"new.ts"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "new.ts")
	assert.FileExists(t, filepath.Join(repo, "new.ts"))

	require.Len(t, sink.Finals(), 1)
	assert.Equal(t, `<dyad-rename from="old.ts" to="new.ts"></dyad-rename>`, sink.Finals()[0])
}
