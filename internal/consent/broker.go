package consent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/agentr/internal/logger"
)

// Decision is a response from the approval surface.
type Decision string

const (
	DecisionAcceptOnce   Decision = "accept-once"
	DecisionAcceptAlways Decision = "accept-always"
	DecisionDecline      Decision = "decline"
)

// Request is published to the approval surface when a tool needs consent.
type Request struct {
	RequestID       string `json:"requestId"`
	ToolName        string `json:"toolName"`
	ToolDescription string `json:"toolDescription,omitempty"`
	InputPreview    string `json:"inputPreview,omitempty"`
}

// Response is the approval surface's answer to a Request.
type Response struct {
	RequestID string   `json:"requestId"`
	Decision  Decision `json:"decision"`
}

// PublishFunc delivers a Request to the approval surface. The transport is
// pluggable: in-process UI, NATS subject, test stub.
type PublishFunc func(Request) error

// Broker owns the correlation-id to resolver map bridging the orchestrator
// and the approval surface. It is constructed once per process; pending
// resolvers never rely on garbage collection for cleanup, so teardown must
// call ForceResolveAll.
type Broker struct {
	policies *PolicyStore
	publish  PublishFunc

	mu      sync.Mutex
	pending map[string]chan Decision
}

// NewBroker creates a broker backed by the given policy store and transport.
func NewBroker(policies *PolicyStore, publish PublishFunc) *Broker {
	return &Broker{
		policies: policies,
		publish:  publish,
		pending:  make(map[string]chan Decision),
	}
}

// Require resolves consent for a tool. With a stored "always" policy it
// returns true immediately with no round trip; this fast path must never
// block. Otherwise it publishes a request and waits for a decision or
// cancellation. Denial is a normal negative result: (false, nil).
func (b *Broker) Require(ctx context.Context, toolName, description, preview string, fallback Policy) (bool, error) {
	policy, err := b.policies.Get(toolName, fallback)
	if err != nil {
		return false, err
	}
	if policy == PolicyAlways {
		return true, nil
	}

	id := uuid.NewString()
	ch := make(chan Decision, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.publish(Request{
		RequestID:       id,
		ToolName:        toolName,
		ToolDescription: description,
		InputPreview:    preview,
	}); err != nil {
		return false, fmt.Errorf("failed to publish consent request: %w", err)
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case decision := <-ch:
		switch decision {
		case DecisionAcceptOnce:
			return true, nil
		case DecisionAcceptAlways:
			if err := b.policies.Set(toolName, PolicyAlways); err != nil {
				logger.Warn("consent granted but policy persistence failed for %s: %v", toolName, err)
			}
			return true, nil
		default:
			return false, nil
		}
	}
}

// Resolve delivers a decision for a pending request id. Each request is
// resolved exactly once; late or duplicate responses are ignored and
// Resolve returns false for them.
func (b *Broker) Resolve(requestID string, decision Decision) bool {
	b.mu.Lock()
	ch, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- decision
	return true
}

// ForceResolveAll resolves every pending request with the given decision.
// Called during turn teardown so a cancelled turn cannot leak a suspended
// consent wait. Idempotent: a second call finds nothing pending.
func (b *Broker) ForceResolveAll(decision Decision) int {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]chan Decision)
	b.mu.Unlock()

	for id, ch := range pending {
		logger.Debug("force-resolving pending consent request %s to %s", id, decision)
		ch <- decision
	}
	return len(pending)
}

// PendingCount reports how many consent requests are awaiting a decision.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
