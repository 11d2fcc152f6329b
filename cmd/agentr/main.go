package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentr",
	Short: "Local tool-calling AI agent for code edits",
	Long: `agentr runs a tool-calling AI agent against a local repository.
The agent streams model output, edits files through consent-gated tools,
bridges in external MCP tool servers, and persists every chat event to an
embedded NATS JetStream store so aborted turns lose nothing.

Mid-turn, a second terminal can steer the agent ('agentr message') or
answer consent prompts ('agentr consent').`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(genTemplateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
