package tools

import (
	"path/filepath"
	"testing"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDDL(t *testing.T) {
	assert.True(t, isDDL("CREATE TABLE users (id INTEGER)"))
	assert.True(t, isDDL("  alter table users add column name text"))
	assert.True(t, isDDL("DROP TABLE users"))
	assert.False(t, isDDL("SELECT * FROM users"))
	assert.False(t, isDDL("INSERT INTO users VALUES (1)"))
}

func TestExecuteSQLRoundTrip(t *testing.T) {
	repo := t.TempDir()
	ac := agent.NewContext(repo, "chat-1", "app-1")
	def := executeSQLTool()

	_, err := execTool(t, def, ac, `{"query":"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"}`)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(repo, "data", "app.db"))

	out, err := execTool(t, def, ac, `{"query":"INSERT INTO users (name) VALUES ('ada')"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "1 rows affected")
	assert.Equal(t, 2, ac.EditCount(filepath.Join("data", "app.db")))

	out, err = execTool(t, def, ac, `{"query":"SELECT id, name FROM users"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"ada"}]`, out)
}

func TestExecuteSQLSelectDoesNotRecordEdit(t *testing.T) {
	repo := t.TempDir()
	ac := agent.NewContext(repo, "chat-1", "app-1")
	def := executeSQLTool()

	_, err := execTool(t, def, ac, `{"query":"CREATE TABLE t (v TEXT)"}`)
	require.NoError(t, err)
	edits := ac.EditCount(filepath.Join("data", "app.db"))

	_, err = execTool(t, def, ac, `{"query":"SELECT * FROM t"}`)
	require.NoError(t, err)
	assert.Equal(t, edits, ac.EditCount(filepath.Join("data", "app.db")))
}

func TestExecuteSQLPreviewOnlyForDDL(t *testing.T) {
	def := executeSQLTool()
	assert.Contains(t, def.BuildPreview(`{"query":"CREATE TABLE t (v TEXT)"}`), "<dyad-database-schema>")
	assert.Empty(t, def.BuildPreview(`{"query":"SELECT 1"}`))
}

func TestExecuteSQLRejectsEmptyQuery(t *testing.T) {
	ac := agent.NewContext(t.TempDir(), "chat-1", "app-1")
	_, err := execTool(t, executeSQLTool(), ac, `{"query":"  "}`)
	assert.Error(t, err)
}
