package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/agentr/internal/config"
	"github.com/spf13/cobra"
)

var setupFlags struct {
	project bool
	force   bool
	model   string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create agentr configuration file",
	Long: `Create an agentr configuration file with sensible defaults.

By default, creates a global config at ~/.config/agentr/config.yaml.
Use --project to create a project-local config in the current directory.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
	setupCmd.Flags().StringVarP(&setupFlags.model, "model", "m", "", "Model to write into the config")
}

func runSetup(cmd *cobra.Command, args []string) error {
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	if !setupFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	cfg := config.Defaults()
	if setupFlags.model != "" {
		cfg.Model = setupFlags.model
	}

	var err error
	if setupFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Config written to: %s\n\n", targetPath)
	fmt.Println("Run 'agentr run \"<prompt>\"' to get started.")
	return nil
}

// fileExists checks if a file exists (helper for setup and config commands).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
