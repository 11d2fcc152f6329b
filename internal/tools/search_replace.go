package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/markup"
)

type searchReplaceArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Repository-relative path of the file to edit"`
	Search  string `json:"search" jsonschema:"required,description=Exact text to find"`
	Replace string `json:"replace" jsonschema:"description=Replacement text"`
}

func searchReplaceTool() *Definition {
	return &Definition{
		Name:           "search_replace",
		Description:    "Replace the first occurrence of a text block in a file",
		InputSchema:    schemaFor(&searchReplaceArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a searchReplaceArgs
			if !tryParse(partial, &a) || a.Path == "" {
				return ""
			}
			diff := udiff.Unified("a/"+a.Path, "b/"+a.Path, a.Search, a.Replace)
			return markup.SearchReplace(a.Path, diff)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a searchReplaceArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			if a.Search == "" {
				return "", fmt.Errorf("%w: search text is required", errs.ErrInvalidInput)
			}
			abs, err := resolvePath(ac.RepoPath, a.Path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return "", fmt.Errorf("failed to read file: %w", err)
			}
			before := string(data)
			if !strings.Contains(before, a.Search) {
				return "", fmt.Errorf("search text not found in %s", a.Path)
			}
			after := strings.Replace(before, a.Search, a.Replace, 1)
			if err := os.WriteFile(abs, []byte(after), 0644); err != nil {
				return "", fmt.Errorf("failed to write file: %w", err)
			}
			ac.RecordEdit(a.Path)
			return fmt.Sprintf("Replaced 1 occurrence in %s", a.Path), nil
		},
	}
}
