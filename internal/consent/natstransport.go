package consent

import (
	"encoding/json"
	"fmt"

	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/nats-io/nats.go"
)

// NATS subjects used to carry the consent protocol between processes.
// The orchestrator publishes requests; an approval surface (TUI, IDE
// plugin, or the `agentr consent` command) publishes responses.
const (
	SubjectRequest  = "agentr.consent.request"
	SubjectResponse = "agentr.consent.response"
)

// NATSTransport bridges a Broker to an approval surface over NATS core
// pub/sub. Requests and responses are fire-and-forget JSON messages;
// exactly-once resolution is enforced by the Broker, so duplicate or late
// responses on the wire are harmless.
type NATSTransport struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSTransport creates a transport on an existing connection.
func NewNATSTransport(nc *nats.Conn) *NATSTransport {
	return &NATSTransport{nc: nc}
}

// Publisher returns a PublishFunc suitable for NewBroker.
func (t *NATSTransport) Publisher() PublishFunc {
	return func(req Request) error {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal consent request: %w", err)
		}
		return t.nc.Publish(SubjectRequest, data)
	}
}

// Listen subscribes to the response subject and routes decisions into the
// broker. Malformed or unmatched responses are logged and dropped.
func (t *NATSTransport) Listen(broker *Broker) error {
	sub, err := t.nc.Subscribe(SubjectResponse, func(msg *nats.Msg) {
		if err := errs.Recover(func() error {
			var resp Response
			if err := json.Unmarshal(msg.Data, &resp); err != nil {
				return fmt.Errorf("malformed consent response: %w", err)
			}
			if !broker.Resolve(resp.RequestID, resp.Decision) {
				logger.Debug("ignoring late or duplicate consent response for %s", resp.RequestID)
			}
			return nil
		}); err != nil {
			logger.Warn("consent response handler: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to consent responses: %w", err)
	}
	t.sub = sub
	return nil
}

// Close unsubscribes from the response subject.
func (t *NATSTransport) Close() error {
	if t.sub != nil {
		return t.sub.Unsubscribe()
	}
	return nil
}

// PublishResponse sends a decision for a pending request. Used by the
// `agentr consent` command to answer from a second process.
func PublishResponse(nc *nats.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal consent response: %w", err)
	}
	if err := nc.Publish(SubjectResponse, data); err != nil {
		return err
	}
	return nc.Flush()
}
