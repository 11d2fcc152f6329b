// Package hooks runs user-defined shell commands around a turn. Hooks are
// declared in .agentr.hooks.yaml in the repository root; a hook marked
// pipe_output feeds its stdout back into the turn prompt.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-repository hooks file.
const ConfigFileName = ".agentr.hooks.yaml"

// DefaultTimeout is the default timeout for hook execution in seconds.
const DefaultTimeout = 30

// Config is the top-level configuration loaded from the hooks file.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig contains all hook configurations.
type HooksConfig struct {
	PreTurn  []*HookConfig `yaml:"pre_turn"`
	PostTurn []*HookConfig `yaml:"post_turn"`
	OnError  []*HookConfig `yaml:"on_error"`
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command    string `yaml:"command"`
	Timeout    int    `yaml:"timeout"`     // seconds, default 30
	PipeOutput bool   `yaml:"pipe_output"` // default false
}

// Variables are exposed to hook commands as AGENTR_* environment variables.
type Variables struct {
	Chat   string
	Prompt string
}

// LoadConfig reads the hooks file from the given directory. A missing file
// is not an error; it returns an empty config.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read hooks config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hooks config: %w", err)
	}
	return &cfg, nil
}

// ExecuteAllPiped runs the hooks in order and returns the concatenated
// stdout of every hook with pipe_output set, separated by blank lines.
// A failing hook aborts the sequence.
func ExecuteAllPiped(ctx context.Context, hooks []*HookConfig, workDir string, vars Variables) (string, error) {
	var piped []string
	for _, h := range hooks {
		out, err := executeOne(ctx, h, workDir, vars)
		if err != nil {
			return "", err
		}
		if h.PipeOutput {
			piped = append(piped, out)
		}
	}
	return strings.Join(piped, "\n"), nil
}

func executeOne(ctx context.Context, h *HookConfig, workDir string, vars Variables) (string, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(hctx, "sh", "-c", h.Command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"AGENTR_CHAT="+vars.Chat,
		"AGENTR_PROMPT="+vars.Prompt,
	)

	var stdout bytes.Buffer
	if h.PipeOutput {
		cmd.Stdout = &stdout
	} else {
		cmd.Stdout = os.Stderr
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("hook %q failed: %w", h.Command, err)
	}
	return stdout.String(), nil
}
