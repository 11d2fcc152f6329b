// Package template renders the system prompt sent on every model call.
// Templates use {{variable}} placeholders so users can ship their own
// prompt file without recompiling.
package template

import (
	"strings"
)

// Variables holds the data to be injected into template placeholders.
type Variables struct {
	WorkDir string // Repository root the agent edits
	Chat    string // Chat id of the turn
	Extra   string // Extra instructions (pre-turn hook output)
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports the following variables:
// - {{workdir}} - Repository root the agent edits
// - {{chat}} - Chat id of the turn
// - {{extra}} - Extra instructions (empty if none)
func Render(template string, vars Variables) string {
	result := template

	replacements := map[string]string{
		"{{workdir}}": vars.WorkDir,
		"{{chat}}":    vars.Chat,
		"{{extra}}":   vars.Extra,
	}

	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}
