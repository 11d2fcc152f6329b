package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func execTool(t *testing.T, def *Definition, ac *agent.Context, args string) (string, error) {
	t.Helper()
	return def.Execute(context.Background(), ac, json.RawMessage(args))
}

func TestResolvePathRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		rel  string
		ok   bool
	}{
		{"plain file", "src/app.ts", true},
		{"dot segments collapse inside", "src/../app.ts", true},
		{"empty", "", false},
		{"absolute", "/etc/passwd", false},
		{"parent escape", "../outside.txt", false},
		{"nested escape", "src/../../outside.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePath(root, tt.rel)
			if tt.ok {
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(got, root))
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteFileCreatesParentDirectories(t *testing.T) {
	repo := t.TempDir()
	ac := agent.NewContext(repo, "chat-1", "app-1")

	out, err := execTool(t, writeFileTool(), ac, `{"path":"src/components/App.tsx","content":"export default 1\n"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "src/components/App.tsx")

	data, err := os.ReadFile(filepath.Join(repo, "src", "components", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export default 1\n", string(data))
	assert.Equal(t, 1, ac.EditCount("src/components/App.tsx"))
}

func TestDeleteFileMissingTargetFails(t *testing.T) {
	ac := agent.NewContext(t.TempDir(), "chat-1", "app-1")
	_, err := execTool(t, deleteFileTool(), ac, `{"path":"nope.ts"}`)
	assert.Error(t, err)
	assert.Equal(t, 0, ac.EditCount("nope.ts"))
}

func TestCopyFilePreservesSource(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "a.ts"), "body"))
	ac := agent.NewContext(repo, "chat-1", "app-1")

	_, err := execTool(t, copyFileTool(), ac, `{"from":"a.ts","to":"b/a.ts"}`)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(repo, "a.ts"))
	data, err := os.ReadFile(filepath.Join(repo, "b", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))
}

func TestReadFileReturnsContent(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "notes.md"), "hello"))
	ac := agent.NewContext(repo, "chat-1", "app-1")

	out, err := execTool(t, readFileTool(), ac, `{"path":"notes.md"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestListFilesSkipsIgnoredDirsAndEmitsListing(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "src", "index.ts"), "x"))
	require.NoError(t, writeTestFile(filepath.Join(repo, "README.md"), "x"))
	require.NoError(t, writeTestFile(filepath.Join(repo, "node_modules", "pkg", "index.js"), "x"))
	require.NoError(t, writeTestFile(filepath.Join(repo, ".git", "HEAD"), "x"))

	ac := agent.NewContext(repo, "chat-1", "app-1")
	out, err := execTool(t, listFilesTool(), ac, `{}`)
	require.NoError(t, err)

	assert.Equal(t, "README.md\nsrc/index.ts", out)
}

func TestSearchReplaceFirstOccurrenceOnly(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "a.ts"), "foo bar foo"))
	ac := agent.NewContext(repo, "chat-1", "app-1")

	out, err := execTool(t, searchReplaceTool(), ac, `{"path":"a.ts","search":"foo","replace":"baz"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a.ts")

	data, err := os.ReadFile(filepath.Join(repo, "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "baz bar foo", string(data))
}

func TestSearchReplaceMissingTextFails(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(repo, "a.ts"), "content"))
	ac := agent.NewContext(repo, "chat-1", "app-1")

	_, err := execTool(t, searchReplaceTool(), ac, `{"path":"a.ts","search":"absent","replace":"x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// File untouched on failure.
	data, err := os.ReadFile(filepath.Join(repo, "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestSearchReplacePreviewCarriesDiff(t *testing.T) {
	def := searchReplaceTool()
	preview := def.BuildPreview(`{"path":"a.ts","search":"old line\n","replace":"new line\n"}`)
	assert.Contains(t, preview, `<dyad-search-replace path="a.ts">`)
	assert.Contains(t, preview, "-old line")
	assert.Contains(t, preview, "+new line")
}

func TestBuildPreviewToleratesPartialJSON(t *testing.T) {
	// Previews are built from streaming argument fragments; incomplete JSON
	// must yield an empty preview, never an error.
	for _, def := range []*Definition{writeFileTool(), deleteFileTool(), searchReplaceTool()} {
		assert.Empty(t, def.BuildPreview(`{"path":"a.`), def.Name)
		assert.Empty(t, def.BuildPreview(``), def.Name)
	}
}
