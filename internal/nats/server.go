// Package nats owns the embedded NATS/JetStream runtime the orchestrator
// persists chat events to. The orchestrator connects in-process; a loopback
// listener can be enabled so sibling CLI processes (message, consent) can
// reach the same server.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamName is the JetStream stream holding all chat events.
const StreamName = "AGENTR_CHAT"

// Event types recorded on the chat stream.
const (
	EventTypeDelta      = "delta"
	EventTypeToolCall   = "toolcall"
	EventTypeToolResult = "toolresult"
	EventTypeSnapshot   = "snapshot"
	EventTypeMarker     = "marker"
	EventTypeSummary    = "summary"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled
// using the specified data directory for file-based storage.
// Returns the server instance or an error if startup fails.
func StartEmbeddedNATS(dataDir string) (*server.Server, error) {
	opts := &server.Options{
		JetStream:  true,
		StoreDir:   dataDir,
		DontListen: true, // No network ports - in-process only
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	// Start server in background goroutine
	go ns.Start()

	// Wait for server to be ready with timeout
	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, errors.New("nats server failed to start within timeout")
	}

	return ns, nil
}

// StartEmbeddedNATSListening starts the embedded server with a loopback TCP
// listener in addition to in-process connections. Sibling processes use the
// port to inject messages and answer consent requests mid-turn.
func StartEmbeddedNATSListening(dataDir string, port int) (*server.Server, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  dataDir,
		Host:      "127.0.0.1",
		Port:      port,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, errors.New("nats server failed to start within timeout")
	}

	return ns, nil
}

// ConnectLocal connects to an embedded server started by another process on
// the loopback listener.
func ConnectLocal(port int) (*nats.Conn, error) {
	return nats.Connect(fmt.Sprintf("nats://127.0.0.1:%d", port))
}

// ConnectInProcess creates an in-process connection to the embedded NATS server.
// This connection does not use network ports and communicates directly with the server.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	return nats.Connect("", nats.InProcessServer(ns))
}

// CreateJetStream creates a JetStream context from a NATS connection.
func CreateJetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// SetupStream creates or updates the chat event stream.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"chat.>"},
		Storage:  jetstream.FileStorage,
	})
}

// ChatSubject builds the subject for one chat's events of a given type.
func ChatSubject(chatID, eventType string) string {
	return fmt.Sprintf("chat.%s.%s", SanitizeToken(chatID), eventType)
}

// ChatFilterSubject matches every event of one chat.
func ChatFilterSubject(chatID string) string {
	return fmt.Sprintf("chat.%s.>", SanitizeToken(chatID))
}

// SanitizeToken maps an id onto a single NATS subject token.
func SanitizeToken(s string) string {
	replacer := strings.NewReplacer(".", "-", "*", "-", ">", "-", " ", "-")
	return replacer.Replace(s)
}

// Shutdown gracefully shuts down the NATS connection and server.
// It first drains and closes the connection, then shuts down the server
// with a timeout to allow in-flight operations to complete.
func Shutdown(nc *nats.Conn, ns *server.Server) error {
	// Close the connection first (drain buffered messages)
	if nc != nil {
		// Drain waits for published messages to be acknowledged
		// and subscriptions to complete before closing
		// Use a timeout for drain to prevent hanging
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- nc.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				// Drain failed, force close
				nc.Close()
			}
		case <-time.After(2 * time.Second):
			// Drain timed out, force close
			nc.Close()
		}
	}

	// Shutdown the server with a grace period
	if ns != nil {
		ns.Shutdown()

		// WaitForShutdown with timeout to prevent hanging
		shutdownDone := make(chan struct{})
		go func() {
			ns.WaitForShutdown()
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
			// Server shut down cleanly
		case <-time.After(5 * time.Second):
			// Shutdown timed out - force stop
			// Note: There's no force-stop API, but at least we don't hang forever
			return errors.New("NATS server shutdown timed out")
		}
	}

	return nil
}
