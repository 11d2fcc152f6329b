package chatstore

import (
	"encoding/json"
	"fmt"

	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/history"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/nats-io/nats.go"
)

// SubjectMessage carries mid-turn user messages from a second process
// (the `agentr message` command) into a running turn.
const SubjectMessage = "agentr.chat.message"

// InboundMessage is a user message sent while a turn is streaming.
type InboundMessage struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// MessageTransport routes inbound mid-turn messages to a handler.
type MessageTransport struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewMessageTransport creates a transport on an existing connection.
func NewMessageTransport(nc *nats.Conn) *MessageTransport {
	return &MessageTransport{nc: nc}
}

// Listen subscribes to the message subject. Messages for other chats are
// ignored; the handler receives the message to enqueue.
func (t *MessageTransport) Listen(chatID string, handle func(history.Message)) error {
	sub, err := t.nc.Subscribe(SubjectMessage, func(msg *nats.Msg) {
		if err := errs.Recover(func() error {
			var in InboundMessage
			if err := json.Unmarshal(msg.Data, &in); err != nil {
				return fmt.Errorf("malformed inbound message: %w", err)
			}
			if in.ChatID != chatID {
				return nil
			}
			handle(history.TextMessage(history.RoleUser, in.Content))
			return nil
		}); err != nil {
			logger.Warn("inbound message handler: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to inbound messages: %w", err)
	}
	t.sub = sub
	return nil
}

// Close unsubscribes from the message subject.
func (t *MessageTransport) Close() error {
	if t.sub != nil {
		return t.sub.Unsubscribe()
	}
	return nil
}

// PublishMessage sends a mid-turn message from a second process.
func PublishMessage(nc *nats.Conn, chatID, content string) error {
	data, err := json.Marshal(InboundMessage{ChatID: chatID, Content: content})
	if err != nil {
		return fmt.Errorf("failed to marshal inbound message: %w", err)
	}
	if err := nc.Publish(SubjectMessage, data); err != nil {
		return err
	}
	return nc.Flush()
}
