package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/mark3labs/agentr/internal/config"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check dependencies and environment",
	Long: `Check that required dependencies are installed and accessible.

This command verifies that:
- git is installed and in PATH (needed for auto-commit)
- An API key is configured for the model provider
- The data directory is writable
- Configured MCP server commands are in PATH`,
	RunE: runDoctor,
}

// Theme colors (catppuccin mocha)
var (
	colorPrimary = lipgloss.Color("#cba6f7") // Mauve
	colorMuted   = lipgloss.Color("#a6adc8") // Subtext0
	colorBase    = lipgloss.Color("#cdd6f4") // Text
	colorSuccess = lipgloss.Color("#a6e3a1") // Green
	colorWarning = lipgloss.Color("#f9e2af") // Yellow
	colorError   = lipgloss.Color("#f38ba8") // Red
	colorBorder  = lipgloss.Color("#585b70") // Surface2
)

type checkResult struct {
	name    string
	status  string
	details string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var results []checkResult
	allOk := true

	// git is required for auto-commit
	if out, err := exec.Command("git", "--version").CombinedOutput(); err != nil {
		results = append(results, checkResult{
			name:    "git",
			status:  "WARN",
			details: "Not found in PATH; auto-commit will be skipped",
		})
	} else {
		results = append(results, checkResult{
			name:    "git",
			status:  "OK",
			details: strings.TrimSpace(string(out)),
		})
	}

	// API key for the model provider
	if cfg.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		results = append(results, checkResult{
			name:    "api key",
			status:  "FAIL",
			details: "Set api_key in config or the OPENAI_API_KEY environment variable",
		})
		allOk = false
	} else {
		results = append(results, checkResult{
			name:    "api key",
			status:  "OK",
			details: fmt.Sprintf("configured (model: %s)", cfg.Model),
		})
	}

	// Data directory must be creatable and writable
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		results = append(results, checkResult{
			name:    "data dir",
			status:  "FAIL",
			details: fmt.Sprintf("Cannot create %s: %v", cfg.DataDir, err),
		})
		allOk = false
	} else {
		results = append(results, checkResult{
			name:    "data dir",
			status:  "OK",
			details: cfg.DataDir,
		})
	}

	// Stdio MCP servers need their command in PATH
	for _, src := range cfg.MCPServers {
		if src.Transport != "stdio" || src.Command == "" {
			continue
		}
		if _, err := exec.LookPath(src.Command); err != nil {
			results = append(results, checkResult{
				name:    "mcp: " + src.Name,
				status:  "WARN",
				details: fmt.Sprintf("command %q not found in PATH", src.Command),
			})
		} else {
			results = append(results, checkResult{
				name:    "mcp: " + src.Name,
				status:  "OK",
				details: src.Command,
			})
		}
	}

	// Build rows with status icons
	rows := make([][]string, len(results))
	for i, r := range results {
		var icon string
		switch r.status {
		case "OK":
			icon = "✓"
		case "FAIL":
			icon = "⊗"
		case "WARN":
			icon = "⊘"
		}
		rows[i] = []string{r.name, icon, r.details}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("Check", "Status", "Details").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().
					Foreground(colorPrimary).
					Bold(true).
					Padding(0, 1)
			}

			style := lipgloss.NewStyle().Padding(0, 1)

			if col == 1 {
				switch results[row].status {
				case "OK":
					return style.Foreground(colorSuccess)
				case "FAIL":
					return style.Foreground(colorError)
				case "WARN":
					return style.Foreground(colorWarning)
				}
			}

			if col == 0 {
				return style.Foreground(colorBase)
			}

			return style.Foreground(colorMuted)
		})

	fmt.Println(t)
	fmt.Println()

	successStyle := lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(colorError)

	if allOk {
		fmt.Println(successStyle.Render("✓ All checks passed!"))
		return nil
	}
	fmt.Println(errorStyle.Render("⊗ Some checks failed. Fix the items above and re-run."))
	return fmt.Errorf("doctor check failed")
}
