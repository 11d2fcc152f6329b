package modelclient

import (
	"context"
	"sync"

	"github.com/mark3labs/agentr/internal/history"
)

// Scripted is a test client that replays canned event sequences, one per
// step. It lives in the package proper so orchestrator tests can drive a
// full turn without a provider.
type Scripted struct {
	mu    sync.Mutex
	steps [][]Event
	next  int

	// Requests records the message list of every Stream call for
	// assertions on injected history.
	Requests [][]history.Message
}

// NewScripted builds a scripted client from per-step event sequences.
func NewScripted(steps ...[]Event) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Model() string {
	return "scripted"
}

func (s *Scripted) Stream(ctx context.Context, system string, msgs []history.Message, tools []ToolSpec) (<-chan Event, error) {
	s.mu.Lock()
	snapshot := make([]history.Message, len(msgs))
	copy(snapshot, msgs)
	s.Requests = append(s.Requests, snapshot)

	var events []Event
	if s.next < len(s.steps) {
		events = s.steps[s.next]
		s.next++
	} else {
		events = []Event{{Type: EventFinish, FinishReason: "stop"}}
	}
	s.mu.Unlock()

	ch := make(chan Event, len(events))
	go func() {
		defer close(ch)
		for _, e := range events {
			select {
			case <-ctx.Done():
				return
			case ch <- e:
			}
		}
	}()
	return ch, nil
}

// StepsServed reports how many scripted steps have been consumed.
func (s *Scripted) StepsServed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
