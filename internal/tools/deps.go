package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/markup"
)

// runCommand is a package-level var to allow test injection.
var runCommand = func(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// packageNameRe allows scoped npm package names with optional version pins.
var packageNameRe = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*\/)?[a-z0-9-~][a-z0-9-._~]*(@[\w.^~<>=-]+)?$`)

type addDependencyArgs struct {
	Packages []string `json:"packages" jsonschema:"required,description=npm package names to install, optionally with version pins"`
}

func addDependencyTool() *Definition {
	return &Definition{
		Name:           "add_dependency",
		Description:    "Install npm packages into the repository",
		InputSchema:    schemaFor(&addDependencyArgs{}),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a addDependencyArgs
			if !tryParse(partial, &a) || len(a.Packages) == 0 {
				return ""
			}
			return markup.AddDependency(strings.Join(a.Packages, " "))
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a addDependencyArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			if len(a.Packages) == 0 {
				return "", fmt.Errorf("%w: no packages given", errs.ErrInvalidInput)
			}
			for _, pkg := range a.Packages {
				if !packageNameRe.MatchString(pkg) {
					return "", fmt.Errorf("%w: invalid package name %q", errs.ErrInvalidInput, pkg)
				}
			}

			installArgs := append([]string{"install"}, a.Packages...)
			out, err := runCommand(ctx, ac.RepoPath, "npm", installArgs...)
			if err != nil {
				return "", fmt.Errorf("npm install failed: %w\n%s", err, out)
			}
			ac.RecordEdit("package.json")
			return fmt.Sprintf("Installed %s", strings.Join(a.Packages, ", ")), nil
		},
	}
}
