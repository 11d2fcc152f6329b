package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/agentr/internal/agent"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/markup"
)

type setChatSummaryArgs struct {
	Summary string `json:"summary" jsonschema:"required,description=One-line summary of the chat so far"`
}

func setChatSummaryTool() *Definition {
	return &Definition{
		Name:           "set_chat_summary",
		Description:    "Set a short title summarizing this chat",
		InputSchema:    schemaFor(&setChatSummaryArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  false,
		BuildPreview: func(partial string) string {
			var a setChatSummaryArgs
			if !tryParse(partial, &a) || a.Summary == "" {
				return ""
			}
			return markup.ChatSummary(a.Summary)
		},
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a setChatSummaryArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			if strings.TrimSpace(a.Summary) == "" {
				return "", fmt.Errorf("%w: empty summary", errs.ErrInvalidInput)
			}
			ac.SetChatSummary(a.Summary)
			return "Chat summary updated", nil
		},
	}
}

type todoItemArgs struct {
	ID    string `json:"id" jsonschema:"required,description=Stable todo identifier"`
	Title string `json:"title" jsonschema:"required,description=What needs doing"`
	Done  bool   `json:"done" jsonschema:"description=Whether the item is complete"`
}

type updateTodoListArgs struct {
	Todos []todoItemArgs `json:"todos" jsonschema:"required,description=The full replacement todo list"`
}

func updateTodoListTool() *Definition {
	return &Definition{
		Name:           "update_todo_list",
		Description:    "Replace the turn's todo list",
		InputSchema:    schemaFor(&updateTodoListArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  false,
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a updateTodoListArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			todos := make([]history.Todo, len(a.Todos))
			remaining := 0
			for i, td := range a.Todos {
				todos[i] = history.Todo{ID: td.ID, Title: td.Title, Done: td.Done}
				if !td.Done {
					remaining++
				}
			}
			ac.SetTodos(todos)
			return fmt.Sprintf("Todo list updated: %d items, %d remaining", len(todos), remaining), nil
		},
	}
}

type finalizeArgs struct {
	Summary string `json:"summary" jsonschema:"description=Optional summary of the work completed this turn"`
}

// finalizeTool is the designated terminal tool: calling it stops the step
// loop and moves the turn into finalization (commit, deploy, approval).
func finalizeTool() *Definition {
	return &Definition{
		Name:           "finalize",
		Description:    "Signal that the requested work is complete and the turn should finalize",
		InputSchema:    schemaFor(&finalizeArgs{}),
		DefaultConsent: consent.PolicyAlways,
		ModifiesState:  false,
		Terminal:       true,
		Execute: func(ctx context.Context, ac *agent.Context, raw json.RawMessage) (string, error) {
			var a finalizeArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return "", fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
			}
			if a.Summary != "" && ac.ChatSummary() == "" {
				ac.SetChatSummary(a.Summary)
			}
			return "Turn will finalize", nil
		},
	}
}
