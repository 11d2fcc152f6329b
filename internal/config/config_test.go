package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdirTemp runs the test from an empty directory so no project config from
// the repository leaks in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Expected default model, got %s", cfg.Model)
	}
	if cfg.MaxSteps != 20 {
		t.Errorf("Expected default max_steps 20, got %d", cfg.MaxSteps)
	}
	if !cfg.AutoCommit {
		t.Error("Expected auto_commit default true")
	}
	if cfg.DataDir != ".agentr" {
		t.Errorf("Expected default data dir, got %s", cfg.DataDir)
	}
}

func TestProjectConfigOverridesGlobal(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	global := Defaults()
	global.Model = "global/model"
	global.MaxSteps = 5
	if err := WriteGlobal(global); err != nil {
		t.Fatalf("WriteGlobal failed: %v", err)
	}

	project := Defaults()
	project.Model = "project/model"
	project.MaxSteps = 10
	if err := WriteProject(project); err != nil {
		t.Fatalf("WriteProject failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "project/model" {
		t.Errorf("Expected project model to win, got %s", cfg.Model)
	}
	if cfg.MaxSteps != 10 {
		t.Errorf("Expected project max_steps to win, got %d", cfg.MaxSteps)
	}
}

func TestEnvOverridesFiles(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	project := Defaults()
	project.Model = "project/model"
	if err := WriteProject(project); err != nil {
		t.Fatalf("WriteProject failed: %v", err)
	}

	t.Setenv("AGENTR_MODEL", "env/model")
	t.Setenv("AGENTR_READ_ONLY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "env/model" {
		t.Errorf("Expected env model to win, got %s", cfg.Model)
	}
	if !cfg.ReadOnly {
		t.Error("Expected AGENTR_READ_ONLY to enable read-only mode")
	}
}

func TestMCPServersFromProjectConfig(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	raw := `model: gpt-4o
mcp_servers:
  - name: github
    transport: stdio
    command: github-mcp
  - name: docs
    transport: http
    url: http://localhost:8080/mcp
`
	if err := os.WriteFile(filepath.Join(dir, ".agentr.yaml"), []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.MCPServers) != 2 {
		t.Fatalf("Expected 2 MCP servers, got %d", len(cfg.MCPServers))
	}
	if cfg.MCPServers[0].Name != "github" || cfg.MCPServers[0].Command != "github-mcp" {
		t.Errorf("Unexpected first server: %+v", cfg.MCPServers[0])
	}
	if cfg.MCPServers[1].URL != "http://localhost:8080/mcp" {
		t.Errorf("Unexpected second server: %+v", cfg.MCPServers[1])
	}
}
