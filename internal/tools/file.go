package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/markup"
)

// resolvePath joins a model-supplied relative path with the repository
// root, rejecting absolute paths and traversal outside the repository.
func resolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", errs.ErrInvalidInput)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute paths are not allowed: %s", errs.ErrInvalidInput, rel)
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes repository: %s", errs.ErrInvalidInput, rel)
	}
	return filepath.Join(root, cleaned), nil
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Repository-relative path of the file to write"`
	Content string `json:"content" jsonschema:"description=Full new content of the file"`
}

func writeFileTool() *Definition {
	return &Definition{
		Name:           "write_file",
		Description:    "Create or overwrite a file with the given content",
		InputSchema:    schemaFor(&writeFileArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a writeFileArgs
			if !tryParse(partial, &a) || a.Path == "" {
				return ""
			}
			return markup.Write(a.Path, a.Content)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a writeFileArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			abs, err := resolvePath(ac.RepoPath, a.Path)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
				return "", fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.WriteFile(abs, []byte(a.Content), 0644); err != nil {
				return "", fmt.Errorf("failed to write file: %w", err)
			}
			ac.RecordEdit(a.Path)
			return fmt.Sprintf("Wrote %s (%d bytes)", a.Path, len(a.Content)), nil
		},
	}
}

type deleteFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Repository-relative path of the file to delete"`
}

func deleteFileTool() *Definition {
	return &Definition{
		Name:           "delete_file",
		Description:    "Delete a file from the repository",
		InputSchema:    schemaFor(&deleteFileArgs{}),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a deleteFileArgs
			if !tryParse(partial, &a) || a.Path == "" {
				return ""
			}
			return markup.Delete(a.Path)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a deleteFileArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			abs, err := resolvePath(ac.RepoPath, a.Path)
			if err != nil {
				return "", err
			}
			if err := os.Remove(abs); err != nil {
				return "", fmt.Errorf("failed to delete file: %w", err)
			}
			ac.RecordEdit(a.Path)
			return fmt.Sprintf("Deleted %s", a.Path), nil
		},
	}
}

type renameFileArgs struct {
	From string `json:"from" jsonschema:"required,description=Current repository-relative path"`
	To   string `json:"to" jsonschema:"required,description=New repository-relative path"`
}

func renameFileTool() *Definition {
	return &Definition{
		Name:           "rename_file",
		Description:    "Rename or move a file within the repository",
		InputSchema:    schemaFor(&renameFileArgs{}),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a renameFileArgs
			if !tryParse(partial, &a) || a.From == "" || a.To == "" {
				return ""
			}
			return markup.Rename(a.From, a.To)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a renameFileArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			from, err := resolvePath(ac.RepoPath, a.From)
			if err != nil {
				return "", err
			}
			to, err := resolvePath(ac.RepoPath, a.To)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
				return "", fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.Rename(from, to); err != nil {
				return "", fmt.Errorf("failed to rename file: %w", err)
			}
			ac.RecordEdit(a.From)
			ac.RecordEdit(a.To)
			return fmt.Sprintf("Renamed %s to %s", a.From, a.To), nil
		},
	}
}

type copyFileArgs struct {
	From string `json:"from" jsonschema:"required,description=Source repository-relative path"`
	To   string `json:"to" jsonschema:"required,description=Destination repository-relative path"`
}

func copyFileTool() *Definition {
	return &Definition{
		Name:           "copy_file",
		Description:    "Copy a file within the repository",
		InputSchema:    schemaFor(&copyFileArgs{}),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a copyFileArgs
			if !tryParse(partial, &a) || a.From == "" || a.To == "" {
				return ""
			}
			return markup.Copy(a.From, a.To)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a copyFileArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			from, err := resolvePath(ac.RepoPath, a.From)
			if err != nil {
				return "", err
			}
			to, err := resolvePath(ac.RepoPath, a.To)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(from)
			if err != nil {
				return "", fmt.Errorf("failed to read source file: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
				return "", fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.WriteFile(to, data, 0644); err != nil {
				return "", fmt.Errorf("failed to write destination file: %w", err)
			}
			ac.RecordEdit(a.To)
			return fmt.Sprintf("Copied %s to %s", a.From, a.To), nil
		},
	}
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Repository-relative path of the file to read"`
}

func readFileTool() *Definition {
	return &Definition{
		Name:           "read_file",
		Description:    "Read the content of a file",
		InputSchema:    schemaFor(&readFileArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  false,
		BuildPreview: func(partial string) string {
			var a readFileArgs
			if !tryParse(partial, &a) || a.Path == "" {
				return ""
			}
			return markup.Read(a.Path)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a readFileArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			abs, err := resolvePath(ac.RepoPath, a.Path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return "", fmt.Errorf("failed to read file: %w", err)
			}
			return string(data), nil
		},
	}
}

type listFilesArgs struct {
	Path string `json:"path" jsonschema:"description=Repository-relative directory to list; defaults to the repository root"`
}

// skipDirs are directories excluded from listings.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".agentr":      true,
}

func listFilesTool() *Definition {
	return &Definition{
		Name:           "list_files",
		Description:    "List files under a directory, recursively",
		InputSchema:    schemaFor(&listFilesArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  false,
		// No preview; the authoritative listing block is emitted by the
		// executor once the walk completes.
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a listFilesArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			root := ac.RepoPath
			if a.Path != "" {
				var err error
				root, err = resolvePath(ac.RepoPath, a.Path)
				if err != nil {
					return "", err
				}
			}

			var files []string
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if skipDirs[d.Name()] {
						return filepath.SkipDir
					}
					return nil
				}
				rel, err := filepath.Rel(ac.RepoPath, path)
				if err != nil {
					return err
				}
				files = append(files, filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				return "", fmt.Errorf("failed to list files: %w", err)
			}
			sort.Strings(files)
			listing := strings.Join(files, "\n")
			if ac.Sink != nil {
				ac.Sink.EmitFinal(markup.ListFiles(a.Path, listing))
			}
			return listing, nil
		},
	}
}
