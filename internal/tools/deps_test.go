package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/agentr/internal/agent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependencyInvokesInstaller(t *testing.T) {
	orig := runCommand
	defer func() { runCommand = orig }()

	var gotDir, gotName string
	var gotArgs []string
	runCommand = func(ctx context.Context, dir, name string, args ...string) (string, error) {
		gotDir, gotName, gotArgs = dir, name, args
		return "added 2 packages", nil
	}

	repo := t.TempDir()
	ac := agent.NewContext(repo, "chat-1", "app-1")

	out, err := execTool(t, addDependencyTool(), ac, `{"packages":["zod","@tanstack/react-query@5.0.0"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, "zod")
	assert.Equal(t, repo, gotDir)
	assert.Equal(t, "npm", gotName)
	assert.Equal(t, []string{"install", "zod", "@tanstack/react-query@5.0.0"}, gotArgs)
	assert.Equal(t, 1, ac.EditCount("package.json"))
}

func TestAddDependencyRejectsInvalidNames(t *testing.T) {
	orig := runCommand
	defer func() { runCommand = orig }()
	runCommand = func(ctx context.Context, dir, name string, args ...string) (string, error) {
		t.Fatal("installer must not run for invalid package names")
		return "", nil
	}

	ac := agent.NewContext(t.TempDir(), "chat-1", "app-1")

	for _, pkg := range []string{"bad name", "../escape", "pkg;rm -rf /", ""} {
		_, err := execTool(t, addDependencyTool(), ac, `{"packages":["`+pkg+`"]}`)
		assert.ErrorIs(t, err, errs.ErrInvalidInput, "package %q", pkg)
	}
	assert.Equal(t, 0, ac.EditCount("package.json"))
}
