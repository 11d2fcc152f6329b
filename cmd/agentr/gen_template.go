package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/agentr/internal/template"
	"github.com/spf13/cobra"
)

var genTemplateFlags struct {
	output string
}

var genTemplateCmd = &cobra.Command{
	Use:   "gen-template",
	Short: "Export the default system prompt template",
	Long: `Export the default system prompt template to a file.

The generated template can be customized and then used with the --template
flag of the run command. Templates use {{variable}} syntax for substitution.`,
	RunE: runGenTemplate,
}

func init() {
	genTemplateCmd.Flags().StringVarP(&genTemplateFlags.output, "output", "o", ".agentr.template", "Output file")
}

func runGenTemplate(cmd *cobra.Command, args []string) error {
	content := template.DefaultTemplate

	if err := os.WriteFile(genTemplateFlags.output, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}

	fmt.Printf("Template exported to: %s\n", genTemplateFlags.output)
	return nil
}
