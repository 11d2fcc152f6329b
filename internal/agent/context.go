// Package agent defines the per-turn execution environment shared by every
// tool invocation in a turn. A Context is owned by exactly one in-flight
// turn and is discarded when the turn ends; only the consent policy store
// outlives it.
package agent

import (
	"context"
	"sync"

	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/markup"
)

// ConsentFunc asks the human for permission to run a tool. The preview is a
// short human-readable description of what the tool is about to do. It
// blocks until a decision arrives or ctx is cancelled.
type ConsentFunc func(ctx context.Context, toolName, preview string) (bool, error)

// Context is the mutable execution environment for one turn.
// Tool executors may run concurrently within a step, so all mutating
// accessors are synchronized.
type Context struct {
	RepoPath string // Root of the local repository tools operate on
	ChatID   string
	AppID    string

	// RequireConsent gates state-mutating tools. Nil means auto-approve,
	// which only happens in tests and read-only turns.
	RequireConsent ConsentFunc

	// Sink receives streaming markup emitted by tools.
	Sink markup.Sink

	mu          sync.Mutex
	pending     []history.Message
	todos       []history.Todo
	editCounts  map[string]int
	chatSummary string
}

// NewContext creates a turn context rooted at repoPath.
func NewContext(repoPath, chatID, appID string) *Context {
	return &Context{
		RepoPath:   repoPath,
		ChatID:     chatID,
		AppID:      appID,
		Sink:       markup.NewBuffer(),
		editCounts: make(map[string]int),
	}
}

// EnqueueUserMessage adds an out-of-band message (e.g. sent from another
// process mid-turn) to the pending queue. It will be drained and spliced
// into history before the next step.
func (c *Context) EnqueueUserMessage(msg history.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, msg)
}

// DrainPendingMessages removes and returns all queued messages in FIFO order.
func (c *Context) DrainPendingMessages() []history.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// SetTodos replaces the turn's todo list.
func (c *Context) SetTodos(todos []history.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos = make([]history.Todo, len(todos))
	copy(c.todos, todos)
}

// Todos returns a copy of the current todo list.
func (c *Context) Todos() []history.Todo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]history.Todo, len(c.todos))
	copy(out, c.todos)
	return out
}

// RecordEdit increments the edit counter for a path and returns the new
// count. The counter feeds the deferred deploy of changed functions at
// finalize time.
func (c *Context) RecordEdit(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editCounts[path]++
	return c.editCounts[path]
}

// EditedPaths returns every path recorded by RecordEdit, deduplicated.
func (c *Context) EditedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.editCounts))
	for p := range c.editCounts {
		out = append(out, p)
	}
	return out
}

// EditCount returns how many times a path was edited this turn.
func (c *Context) EditCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editCounts[path]
}

// SetChatSummary stores the model-provided summary for this chat.
func (c *Context) SetChatSummary(summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatSummary = summary
}

// ChatSummary returns the summary set during this turn, if any.
func (c *Context) ChatSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatSummary
}
