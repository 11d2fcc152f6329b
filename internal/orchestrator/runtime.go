// Package orchestrator drives one agent turn: the step loop between model
// and tools, consent gating, history injection, telemetry, persistence,
// and turn finalization.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/agentr/internal/chatstore"
	"github.com/mark3labs/agentr/internal/consent"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/nats"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// RuntimeConfig holds configuration for the shared runtime.
type RuntimeConfig struct {
	DataDir string // Data directory for NATS storage and the policy store
	WorkDir string // Repository the agent edits

	// Port enables the loopback NATS listener so sibling processes can
	// send messages and consent decisions. Zero keeps the server
	// in-process only.
	Port int
}

// Runtime owns the long-lived infrastructure turns run on: the embedded
// NATS server, the chat event store, and the consent broker with its
// transport. One runtime serves many sequential turns.
type Runtime struct {
	cfg RuntimeConfig

	ns     *natsserver.Server
	nc     *natsgo.Conn
	store  *chatstore.Store
	polcy  *consent.PolicyStore
	broker *consent.Broker

	consentTransport *consent.NATSTransport
}

// NewRuntime creates a runtime rooted at the given directories.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = ".agentr"
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	return &Runtime{cfg: cfg}, nil
}

// Start brings up the embedded NATS server, the chat stream, the consent
// policy store, and the consent transport.
func (r *Runtime) Start(ctx context.Context) error {
	natsDir := filepath.Join(r.cfg.DataDir, "nats")
	if err := os.MkdirAll(natsDir, 0755); err != nil {
		return fmt.Errorf("failed to create NATS data directory: %w", err)
	}

	var ns *natsserver.Server
	var err error
	if r.cfg.Port > 0 {
		ns, err = nats.StartEmbeddedNATSListening(natsDir, r.cfg.Port)
	} else {
		ns, err = nats.StartEmbeddedNATS(natsDir)
	}
	if err != nil {
		return fmt.Errorf("failed to start NATS: %w", err)
	}
	r.ns = ns

	nc, err := nats.ConnectInProcess(ns)
	if err != nil {
		return fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}
	r.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	stream, err := nats.SetupStream(ctx, js)
	if err != nil {
		return fmt.Errorf("failed to setup stream: %w", err)
	}
	r.store = chatstore.NewStore(js, stream)

	policies, err := consent.OpenPolicyStore(filepath.Join(r.cfg.DataDir, "consent.db"))
	if err != nil {
		return fmt.Errorf("failed to open consent policy store: %w", err)
	}
	r.polcy = policies

	transport := consent.NewNATSTransport(nc)
	r.broker = consent.NewBroker(policies, transport.Publisher())
	if err := transport.Listen(r.broker); err != nil {
		return fmt.Errorf("failed to start consent transport: %w", err)
	}
	r.consentTransport = transport

	logger.Info("runtime started (data dir %s)", r.cfg.DataDir)
	return nil
}

// Store returns the chat event store.
func (r *Runtime) Store() *chatstore.Store {
	return r.store
}

// Broker returns the consent broker.
func (r *Runtime) Broker() *consent.Broker {
	return r.broker
}

// Conn returns the in-process NATS connection.
func (r *Runtime) Conn() *natsgo.Conn {
	return r.nc
}

// WorkDir returns the repository root turns operate on.
func (r *Runtime) WorkDir() string {
	return r.cfg.WorkDir
}

// Stop shuts everything down: pending consents are force-declined so no
// waiter leaks, then the transport, policy store, connection, and server
// close in order.
func (r *Runtime) Stop() error {
	if r.broker != nil {
		if n := r.broker.ForceResolveAll(consent.DecisionDecline); n > 0 {
			logger.Warn("declined %d consent requests pending at shutdown", n)
		}
	}
	if r.consentTransport != nil {
		if err := r.consentTransport.Close(); err != nil {
			logger.Warn("failed to close consent transport: %v", err)
		}
	}
	if r.polcy != nil {
		if err := r.polcy.Close(); err != nil {
			logger.Warn("failed to close policy store: %v", err)
		}
	}
	return nats.Shutdown(r.nc, r.ns)
}
