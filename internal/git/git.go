// Package git shells out to the git CLI for the repository the agent edits.
// Commit operations run only at turn finalization, never mid-stream.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// runGit is a package-level var to allow test injection. It executes a git
// command in dir and returns trimmed stdout.
var runGit = func(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Info contains git repository status information.
type Info struct {
	Branch string // Branch name or "HEAD" if detached
	Hash   string // Short commit hash (7 chars)
	Dirty  bool   // Uncommitted changes exist
	Ahead  int    // Commits ahead of remote
	Behind int    // Commits behind remote
}

// GetInfo retrieves repository status for the given directory.
// Returns nil, nil if the directory is not a git repository.
func GetInfo(ctx context.Context, dir string) (*Info, error) {
	if !IsRepo(ctx, dir) {
		return nil, nil
	}

	info := &Info{}

	branch, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	info.Branch = branch

	hash, err := runGit(ctx, dir, "rev-parse", "--short=7", "HEAD")
	if err != nil {
		return nil, err
	}
	info.Hash = hash

	status, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	info.Dirty = status != ""

	// Ahead/behind counts; stays 0/0 when there is no upstream.
	counts, err := runGit(ctx, dir, "rev-list", "--left-right", "--count", "@{u}...HEAD")
	if err == nil && counts != "" {
		parts := strings.Fields(counts)
		if len(parts) == 2 {
			info.Behind, _ = strconv.Atoi(parts[0])
			info.Ahead, _ = strconv.Atoi(parts[1])
		}
	}

	return info, nil
}

// IsRepo checks whether the directory is inside a git repository.
func IsRepo(ctx context.Context, dir string) bool {
	_, err := runGit(ctx, dir, "rev-parse", "--git-dir")
	return err == nil
}

// HasChanges reports whether the working tree has uncommitted changes.
func HasChanges(ctx context.Context, dir string) (bool, error) {
	status, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// CommitAll stages everything and commits with the given message. A clean
// tree is not an error; it returns ("", nil) and commits nothing.
func CommitAll(ctx context.Context, dir, message string) (string, error) {
	dirty, err := HasChanges(ctx, dir)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", nil
	}
	if _, err := runGit(ctx, dir, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := runGit(ctx, dir, "commit", "-m", message); err != nil {
		return "", err
	}
	return runGit(ctx, dir, "rev-parse", "--short=7", "HEAD")
}
