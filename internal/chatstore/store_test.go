package chatstore

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/nats"
	natsclient "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func newTestStore(t *testing.T) (*Store, *natsclient.Conn) {
	t.Helper()

	srv, err := nats.StartEmbeddedNATS(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to start NATS: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	nc, err := nats.ConnectInProcess(srv)
	if err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to create JetStream: %v", err)
	}

	stream, err := nats.SetupStream(context.Background(), js)
	if err != nil {
		t.Fatalf("Failed to setup stream: %v", err)
	}

	return NewStore(js, stream), nc
}

func TestDeltasPersistInOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	chat := "chat-order"

	for _, text := range []string{"Hello", ", ", "world"} {
		if err := store.AppendTextDelta(ctx, chat, text); err != nil {
			t.Fatalf("Failed to append delta: %v", err)
		}
	}

	events, err := store.LoadEvents(ctx, chat)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	joined := events[0].Data + events[1].Data + events[2].Data
	if joined != "Hello, world" {
		t.Errorf("Expected deltas to replay in order, got %q", joined)
	}
}

func TestCancellationMarkerAfterPartialStream(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	chat := "chat-cancel"

	for _, text := range []string{"a", "b", "c"} {
		if err := store.AppendTextDelta(ctx, chat, text); err != nil {
			t.Fatalf("Failed to append delta: %v", err)
		}
	}
	if err := store.Mark(ctx, chat, ActionCancelled, "user abort"); err != nil {
		t.Fatalf("Failed to mark cancelled: %v", err)
	}

	events, err := store.LoadEvents(ctx, chat)
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 3 deltas + 1 marker, got %d events", len(events))
	}
	last := events[len(events)-1]
	if last.Type != nats.EventTypeMarker || last.Action != ActionCancelled {
		t.Errorf("Expected trailing cancellation marker, got type=%s action=%s", last.Type, last.Action)
	}

	cancelled, err := store.WasCancelled(ctx, chat)
	if err != nil {
		t.Fatalf("Failed to check cancellation: %v", err)
	}
	if !cancelled {
		t.Errorf("Expected chat to be marked cancelled")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	chat := "chat-snapshot"

	msgs := []history.Message{
		history.TextMessage(history.RoleUser, "build it"),
		{Role: history.RoleAssistant, Parts: []history.Part{
			{Type: history.PartText, Text: "done"},
			{Type: history.PartToolCall, ToolCallID: "c1", ToolName: "write_file", Args: `{"path":"a.ts"}`},
			{Type: history.PartToolResult, ToolCallID: "c1", ToolName: "write_file", Result: "Wrote a.ts"},
		}},
	}
	if err := store.SaveSnapshot(ctx, chat, msgs); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	loaded, err := store.LoadHistory(ctx, chat)
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(loaded))
	}
	if loaded[1].Parts[1].ToolName != "write_file" {
		t.Errorf("Expected tool call part to survive the round trip")
	}
}

func TestLoadHistoryUsesLatestSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	chat := "chat-latest"

	first := []history.Message{history.TextMessage(history.RoleUser, "v1")}
	second := []history.Message{
		history.TextMessage(history.RoleUser, "v1"),
		history.TextMessage(history.RoleAssistant, "v2"),
	}
	if err := store.SaveSnapshot(ctx, chat, first); err != nil {
		t.Fatalf("Failed to save first snapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, chat, second); err != nil {
		t.Fatalf("Failed to save second snapshot: %v", err)
	}

	loaded, err := store.LoadHistory(ctx, chat)
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected latest snapshot with 2 messages, got %d", len(loaded))
	}
}

func TestLoadHistoryEmptyForNewChat(t *testing.T) {
	store, _ := newTestStore(t)

	loaded, err := store.LoadHistory(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Expected no error for a new chat, got %v", err)
	}
	if loaded != nil {
		t.Errorf("Expected nil history for a new chat, got %d messages", len(loaded))
	}
}

func TestEventsAreIsolatedPerChat(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.AppendTextDelta(ctx, "chat-a", "a"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := store.AppendTextDelta(ctx, "chat-b", "b"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	events, err := store.LoadEvents(ctx, "chat-a")
	if err != nil {
		t.Fatalf("Failed to load events: %v", err)
	}
	if len(events) != 1 || events[0].Data != "a" {
		t.Errorf("Expected exactly chat-a's event, got %+v", events)
	}
}

func TestMessageTransportRoutesToMatchingChat(t *testing.T) {
	_, nc := newTestStore(t)

	received := make(chan history.Message, 2)
	transport := NewMessageTransport(nc)
	if err := transport.Listen("chat-1", func(m history.Message) { received <- m }); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer transport.Close()

	if err := PublishMessage(nc, "chat-other", "not for you"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if err := PublishMessage(nc, "chat-1", "also fix the header"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Parts[0].Text != "also fix the header" {
			t.Errorf("Expected the matching chat's message, got %q", msg.Parts[0].Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for inbound message")
	}

	select {
	case msg := <-received:
		t.Errorf("Unexpected extra message: %q", msg.Parts[0].Text)
	case <-time.After(100 * time.Millisecond):
	}
}
