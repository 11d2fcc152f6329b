// Package consent resolves, persists, and brokers per-tool consent
// decisions between the orchestrator and an external approval surface.
package consent

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Policy is the stored consent policy for a tool name.
type Policy string

const (
	// PolicyAsk triggers a live round-trip to the approval surface.
	PolicyAsk Policy = "ask"
	// PolicyAlways auto-approves without a round trip.
	PolicyAlways Policy = "always"
)

// PolicyStore persists per-tool-name consent policies in SQLite. Policies
// are keyed by tool name only, not by turn: an "always" grant affects every
// future turn. This is the single cross-turn shared mutable resource.
type PolicyStore struct {
	db *sql.DB
}

// OpenPolicyStore opens (creating if needed) the policy database at path.
func OpenPolicyStore(path string) (*PolicyStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create policy store directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS consent_policy (
	tool_name  TEXT PRIMARY KEY,
	policy     TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create consent_policy table: %w", err)
	}

	return &PolicyStore{db: db}, nil
}

// Get returns the stored policy for a tool name, defaulting to fallback
// when no row exists.
func (s *PolicyStore) Get(toolName string, fallback Policy) (Policy, error) {
	var p string
	err := s.db.QueryRow(
		`SELECT policy FROM consent_policy WHERE tool_name = ?`, toolName,
	).Scan(&p)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to read policy for %s: %w", toolName, err)
	}
	if Policy(p) != PolicyAlways {
		return PolicyAsk, nil
	}
	return PolicyAlways, nil
}

// Set stores a policy for a tool name, replacing any existing row.
func (s *PolicyStore) Set(toolName string, p Policy) error {
	_, err := s.db.Exec(
		`INSERT INTO consent_policy (tool_name, policy, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(tool_name) DO UPDATE SET policy = excluded.policy, updated_at = excluded.updated_at`,
		toolName, string(p),
	)
	if err != nil {
		return fmt.Errorf("failed to store policy for %s: %w", toolName, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PolicyStore) Close() error {
	return s.db.Close()
}
