// Package chatstore persists chat history as an append-only event stream in
// embedded JetStream. Streaming deltas are appended as they arrive so an
// aborted turn loses nothing already streamed; a snapshot of the full
// message list is written when a turn finalizes.
package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/nats"
	"github.com/mark3labs/agentr/internal/telemetry"
	"github.com/nats-io/nats.go/jetstream"
)

// Actions recorded within marker events.
const (
	ActionCancelled = "cancelled"
	ActionApproved  = "approved"
	ActionErrored   = "errored"
)

// Event is one persisted chat event.
type Event struct {
	Chat      string          `json:"chat"`
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Data      string          `json:"data,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store provides typed operations over the chat event stream.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a store over an existing JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{js: js, stream: stream}
}

// PublishEvent appends an event to the chat stream and returns its sequence.
func (s *Store) PublishEvent(ctx context.Context, event Event) (uint64, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}
	ack, err := s.js.Publish(ctx, nats.ChatSubject(event.Chat, event.Type), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return ack.Sequence, nil
}

// AppendTextDelta records one streamed fragment of assistant text.
func (s *Store) AppendTextDelta(ctx context.Context, chat, text string) error {
	_, err := s.PublishEvent(ctx, Event{
		Chat:   chat,
		Type:   nats.EventTypeDelta,
		Action: "text",
		Data:   text,
	})
	return err
}

// AppendReasoningDelta records one streamed fragment of reasoning text.
func (s *Store) AppendReasoningDelta(ctx context.Context, chat, text string) error {
	_, err := s.PublishEvent(ctx, Event{
		Chat:   chat,
		Type:   nats.EventTypeDelta,
		Action: "reasoning",
		Data:   text,
	})
	return err
}

// AppendToolCall records a dispatched tool call.
func (s *Store) AppendToolCall(ctx context.Context, chat, callID, toolName, args string) error {
	meta, err := json.Marshal(map[string]string{"callId": callID, "tool": toolName})
	if err != nil {
		return fmt.Errorf("failed to marshal tool call metadata: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Chat: chat,
		Type: nats.EventTypeToolCall,
		Meta: meta,
		Data: args,
	})
	return err
}

// AppendToolResult records the outcome of a tool call.
func (s *Store) AppendToolResult(ctx context.Context, chat, callID, toolName, result, status string) error {
	meta, err := json.Marshal(map[string]string{"callId": callID, "tool": toolName, "status": status})
	if err != nil {
		return fmt.Errorf("failed to marshal tool result metadata: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Chat: chat,
		Type: nats.EventTypeToolResult,
		Meta: meta,
		Data: result,
	})
	return err
}

// Mark appends a lifecycle marker (cancelled, approved, errored).
func (s *Store) Mark(ctx context.Context, chat, action, detail string) error {
	_, err := s.PublishEvent(ctx, Event{
		Chat:   chat,
		Type:   nats.EventTypeMarker,
		Action: action,
		Data:   detail,
	})
	return err
}

// SaveSnapshot persists the authoritative message list at turn end.
func (s *Store) SaveSnapshot(ctx context.Context, chat string, msgs []history.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal history snapshot: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Chat: chat,
		Type: nats.EventTypeSnapshot,
		Data: string(data),
	})
	return err
}

// SaveSummary persists the turn's telemetry summary.
func (s *Store) SaveSummary(ctx context.Context, chat string, summary *telemetry.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Chat: chat,
		Type: nats.EventTypeSummary,
		Data: string(data),
	})
	return err
}

// LoadEvents replays every persisted event for a chat in order.
func (s *Store) LoadEvents(ctx context.Context, chat string) ([]Event, error) {
	cons, err := s.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{nats.ChatFilterSubject(chat)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var events []Event
	for {
		batch, err := cons.FetchNoWait(100)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}
		n := 0
		for msg := range batch.Messages() {
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.Warn("skipping undecodable chat event: %v", err)
				continue
			}
			events = append(events, event)
			n++
		}
		if batch.Error() != nil {
			return nil, fmt.Errorf("failed to read events: %w", batch.Error())
		}
		if n == 0 {
			break
		}
	}
	return events, nil
}

// LoadHistory reconstructs the message list from the latest snapshot.
// A chat with no snapshot yet is a new chat: empty history, no error.
func (s *Store) LoadHistory(ctx context.Context, chat string) ([]history.Message, error) {
	events, err := s.LoadEvents(ctx, chat)
	if err != nil {
		return nil, err
	}
	var latest *Event
	for i := range events {
		if events[i].Type == nats.EventTypeSnapshot {
			latest = &events[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	var msgs []history.Message
	if err := json.Unmarshal([]byte(latest.Data), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode history snapshot: %w", err)
	}
	return msgs, nil
}

// WasCancelled reports whether the chat's latest marker is a cancellation.
func (s *Store) WasCancelled(ctx context.Context, chat string) (bool, error) {
	events, err := s.LoadEvents(ctx, chat)
	if err != nil {
		return false, err
	}
	cancelled := false
	for _, e := range events {
		if e.Type != nats.EventTypeMarker {
			continue
		}
		cancelled = e.Action == ActionCancelled
	}
	return cancelled, nil
}
