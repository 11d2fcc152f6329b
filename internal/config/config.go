// Package config layers agent configuration from defaults, a global file,
// a project file, and AGENTR_* environment variables, in rising precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/agentr/internal/mcpbridge"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the agent reads at startup.
type Config struct {
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	MaxSteps   int    `mapstructure:"max_steps" yaml:"max_steps"`
	AutoCommit bool   `mapstructure:"auto_commit" yaml:"auto_commit"`
	ReadOnly   bool   `mapstructure:"read_only" yaml:"read_only"`
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	NATSPort   int    `mapstructure:"nats_port" yaml:"nats_port"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file,omitempty"`

	// MCPServers lists external tool sources dialed at turn start.
	MCPServers []mcpbridge.SourceConfig `mapstructure:"mcp_servers" yaml:"mcp_servers,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Model:      "gpt-4o",
		MaxSteps:   20,
		AutoCommit: true,
		DataDir:    ".agentr",
		NATSPort:   4833,
		LogLevel:   "info",
	}
}

// GlobalPath returns the path of the user-wide config file.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentr.yaml"
	}
	return filepath.Join(home, ".config", "agentr", "config.yaml")
}

// ProjectPath returns the path of the per-repository config file.
func ProjectPath() string {
	return ".agentr.yaml"
}

// Exists reports whether any config file is present.
func Exists() bool {
	if _, err := os.Stat(GlobalPath()); err == nil {
		return true
	}
	_, err := os.Stat(ProjectPath())
	return err == nil
}

// Load merges defaults, global file, project file, and environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Defaults()
	v.SetDefault("model", defaults.Model)
	v.SetDefault("max_steps", defaults.MaxSteps)
	v.SetDefault("auto_commit", defaults.AutoCommit)
	v.SetDefault("read_only", defaults.ReadOnly)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("nats_port", defaults.NATSPort)
	v.SetDefault("log_level", defaults.LogLevel)

	if data, err := os.ReadFile(GlobalPath()); err == nil {
		if err := v.MergeConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("failed to parse global config: %w", err)
		}
	}
	if data, err := os.ReadFile(ProjectPath()); err == nil {
		if err := v.MergeConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("failed to parse project config: %w", err)
		}
	}

	v.SetEnvPrefix("AGENTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"model", "api_key", "base_url", "max_steps", "auto_commit", "read_only", "data_dir", "nats_port", "log_level", "log_file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// WriteGlobal writes the config to the global path, creating directories.
func WriteGlobal(cfg *Config) error {
	return writeFile(GlobalPath(), cfg)
}

// WriteProject writes the config to the project path.
func WriteProject(cfg *Config) error {
	return writeFile(ProjectPath(), cfg)
}

func writeFile(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
