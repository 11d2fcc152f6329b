package markup

import (
	"strings"
	"sync"
)

// Buffer is a Sink that accumulates final blocks in order and remembers the
// most recent incremental preview per turn. Used by the orchestrator to
// build the persisted response and by tests to assert on emissions.
type Buffer struct {
	mu          sync.Mutex
	finals      []string
	incremental string
}

// NewBuffer creates an empty buffering sink.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// EmitIncremental records the latest preview block. Previews overwrite each
// other; only the final emission is kept permanently.
func (b *Buffer) EmitIncremental(blk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.incremental = blk
}

// EmitFinal appends an authoritative block.
func (b *Buffer) EmitFinal(blk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = append(b.finals, blk)
	b.incremental = ""
}

// Finals returns a copy of all authoritative blocks emitted so far.
func (b *Buffer) Finals() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.finals))
	copy(out, b.finals)
	return out
}

// Incremental returns the most recent preview block, or "" if the last
// emission was final.
func (b *Buffer) Incremental() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.incremental
}

// Joined returns all final blocks concatenated with newlines.
func (b *Buffer) Joined() string {
	return strings.Join(b.Finals(), "\n")
}

// CallbackSink adapts two functions into a Sink. Either callback may be nil.
type CallbackSink struct {
	OnIncremental func(block string)
	OnFinal       func(block string)
}

func (s CallbackSink) EmitIncremental(blk string) {
	if s.OnIncremental != nil {
		s.OnIncremental(blk)
	}
}

func (s CallbackSink) EmitFinal(blk string) {
	if s.OnFinal != nil {
		s.OnFinal(blk)
	}
}
