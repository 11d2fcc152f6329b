package history

import (
	"fmt"
	"sort"
	"strings"
)

// InjectedMessage is a message produced mid-turn (e.g. an image emitted by a
// tool) that must enter history at a stable position. InsertAtIndex is the
// history length at creation time; Sequence preserves FIFO order among
// messages sharing an index.
type InjectedMessage struct {
	InsertAtIndex int
	Sequence      int
	Message       Message
}

// Injector accumulates pending injections for one turn and rebuilds the
// message list before each step. It is owned by a single turn and is not
// safe for concurrent use; the orchestrator calls it between steps only.
type Injector struct {
	seq          int
	injections   []InjectedMessage
	reminderSent bool
}

// NewInjector creates an empty injector for a new turn.
func NewInjector() *Injector {
	return &Injector{}
}

// Enqueue records a message to be spliced at the given history index on the
// next PrepareStep. Messages enqueued at the same index keep their enqueue
// order in the final list.
func (inj *Injector) Enqueue(insertAtIndex int, msg Message) {
	inj.injections = append(inj.injections, InjectedMessage{
		InsertAtIndex: insertAtIndex,
		Sequence:      inj.seq,
		Message:       msg,
	})
	inj.seq++
}

// Injections returns the injection records not yet spliced into history.
func (inj *Injector) Injections() []InjectedMessage {
	out := make([]InjectedMessage, len(inj.injections))
	copy(out, inj.injections)
	return out
}

// PrepareStep rebuilds the message list before the next model call:
//
//  1. Drained pending user messages become injections at the current
//     history length.
//  2. The existing list is sanitized for provider compatibility.
//  3. If todos are incomplete, no reminder has been sent this turn, and
//     the previous message did not end mid-tool-call, a synthetic reminder
//     is appended (once per turn).
//  4. Accumulated injections are spliced in, highest (index, sequence)
//     first, which makes same-index messages come out FIFO. Spliced
//     injections are consumed: the caller persists the returned list, so
//     each injection enters history exactly once and keeps its position
//     on every later step.
//
// Returns nil when nothing changed so the caller can skip recomputation.
func (inj *Injector) PrepareStep(base []Message, pending []Message, todos []Todo) []Message {
	changed := false

	for _, msg := range pending {
		inj.Enqueue(len(base), msg)
		changed = true
	}

	msgs, sanitized := sanitize(base)
	changed = changed || sanitized

	if inj.shouldRemind(todos) && !endsMidToolCall(msgs) {
		msgs = append(msgs, reminderMessage(todos))
		inj.reminderSent = true
		changed = true
	}

	if len(inj.injections) > 0 {
		msgs = splice(msgs, inj.injections)
		inj.injections = inj.injections[:0]
		changed = true
	}

	if !changed {
		return nil
	}
	return msgs
}

func (inj *Injector) shouldRemind(todos []Todo) bool {
	if inj.reminderSent {
		return false
	}
	for _, td := range todos {
		if !td.Done {
			return true
		}
	}
	return false
}

// reminderMessage lists the still-pending todos for the model.
func reminderMessage(todos []Todo) Message {
	var b strings.Builder
	b.WriteString("Reminder: the following todo items are still incomplete:\n")
	for _, td := range todos {
		if !td.Done {
			fmt.Fprintf(&b, "- %s\n", td.Title)
		}
	}
	b.WriteString("Continue working through them or update the todo list.")
	return TextMessage(RoleUser, b.String())
}

// sanitize strips transient provider identifiers and drops orphaned
// reasoning blocks that lack a following content block. Returns the
// (possibly new) list and whether anything changed.
func sanitize(base []Message) ([]Message, bool) {
	changed := false
	msgs := clone(base)
	for i := range msgs {
		parts := msgs[i].Parts
		kept := parts[:0]
		for j, p := range parts {
			if p.ProviderID != "" {
				p.ProviderID = ""
				changed = true
			}
			if p.Type == PartReasoning && !hasContentAfter(parts, j) {
				changed = true
				continue
			}
			kept = append(kept, p)
		}
		msgs[i].Parts = kept
	}
	return msgs, changed
}

// hasContentAfter reports whether any non-reasoning part follows index j.
func hasContentAfter(parts []Part, j int) bool {
	for _, p := range parts[j+1:] {
		if p.Type != PartReasoning {
			return true
		}
	}
	return false
}

// splice inserts every injection into msgs. Splicing in descending
// (InsertAtIndex, Sequence) order guarantees that items sharing an index
// appear in original enqueue order: later items are inserted first and get
// pushed back by earlier ones.
func splice(msgs []Message, injections []InjectedMessage) []Message {
	ordered := make([]InjectedMessage, len(injections))
	copy(ordered, injections)
	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].InsertAtIndex != ordered[b].InsertAtIndex {
			return ordered[a].InsertAtIndex > ordered[b].InsertAtIndex
		}
		return ordered[a].Sequence > ordered[b].Sequence
	})

	for _, in := range ordered {
		at := in.InsertAtIndex
		if at > len(msgs) {
			at = len(msgs)
		}
		msgs = append(msgs[:at], append([]Message{in.Message}, msgs[at:]...)...)
	}
	return msgs
}
