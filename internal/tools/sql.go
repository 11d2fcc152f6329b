package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/markup"
	_ "modernc.org/sqlite"
)

// appDBPath locates the generated app's SQLite database inside the repo.
func appDBPath(repoPath string) string {
	return filepath.Join(repoPath, "data", "app.db")
}

type executeSQLArgs struct {
	Query string `json:"query" jsonschema:"required,description=SQL statement to execute against the app database"`
}

// isDDL reports whether a statement changes the database schema.
func isDDL(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(head, "CREATE") ||
		strings.HasPrefix(head, "ALTER") ||
		strings.HasPrefix(head, "DROP")
}

func executeSQLTool() *Definition {
	return &Definition{
		Name:           "execute_sql",
		Description:    "Execute a SQL statement against the app's SQLite database",
		InputSchema:    schemaFor(&executeSQLArgs{}),
		DefaultConsent: consent.PolicyAsk,
		ModifiesState:  true,
		BuildPreview: func(partial string) string {
			var a executeSQLArgs
			if !tryParse(partial, &a) || a.Query == "" {
				return ""
			}
			if isDDL(a.Query) {
				return markup.DatabaseSchema(a.Query)
			}
			return ""
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a executeSQLArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			if strings.TrimSpace(a.Query) == "" {
				return "", fmt.Errorf("%w: empty query", errs.ErrInvalidInput)
			}

			dbPath := appDBPath(ac.RepoPath)
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return "", fmt.Errorf("failed to create data directory: %w", err)
			}
			db, err := sql.Open("sqlite", dbPath)
			if err != nil {
				return "", fmt.Errorf("failed to open app database: %w", err)
			}
			defer db.Close()

			head := strings.ToUpper(strings.TrimSpace(a.Query))
			if strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "PRAGMA") {
				return querySQL(ctx, db, a.Query)
			}

			res, err := db.ExecContext(ctx, a.Query)
			if err != nil {
				return "", fmt.Errorf("sql execution failed: %w", err)
			}
			ac.RecordEdit(filepath.Join("data", "app.db"))
			affected, _ := res.RowsAffected()
			return fmt.Sprintf("OK, %d rows affected", affected), nil
		},
	}
}

// querySQL runs a row-returning statement and renders the rows as JSON.
func querySQL(ctx context.Context, db *sql.DB, query string) (string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("sql query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("row iteration failed: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rows: %w", err)
	}
	return string(data), nil
}
