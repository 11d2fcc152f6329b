package main

import (
	"fmt"
	"strings"

	"github.com/mark3labs/agentr/internal/chatstore"
	"github.com/mark3labs/agentr/internal/config"
	"github.com/mark3labs/agentr/internal/nats"
	natsgo "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var messageFlags struct {
	chat string
	port int
}

var messageCmd = &cobra.Command{
	Use:   "message <message>",
	Short: "Send a message to a running turn",
	Long: `Send a message to a turn running in another terminal.

The message is spliced into the conversation before the agent's next
model call, so it can steer work already in progress without waiting
for the turn to finish.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMessage,
}

func init() {
	messageCmd.Flags().StringVarP(&messageFlags.chat, "chat", "c", "", "Chat id of the running turn (required)")
	messageCmd.MarkFlagRequired("chat")
	messageCmd.Flags().IntVar(&messageFlags.port, "port", 0, "NATS port of the running agent (default from config)")
}

func runMessage(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	nc, err := connectToAgent(messageFlags.port)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := chatstore.PublishMessage(nc, messageFlags.chat, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	fmt.Printf("Message sent to chat '%s'\n", messageFlags.chat)
	return nil
}

// connectToAgent dials the loopback listener of the agent process running in
// another terminal. Shared by the message and consent commands.
func connectToAgent(port int) (*natsgo.Conn, error) {
	if port == 0 {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		port = cfg.NATSPort
	}
	nc, err := nats.ConnectLocal(port)
	if err != nil {
		return nil, fmt.Errorf("no agent reachable on port %d (is 'agentr run' active?): %w", port, err)
	}
	return nc, nil
}
