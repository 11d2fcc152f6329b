package main

import (
	"fmt"

	"github.com/mark3labs/agentr/internal/consent"
	"github.com/spf13/cobra"
)

var consentFlags struct {
	port int
}

var consentCmd = &cobra.Command{
	Use:   "consent <request-id> <accept|always|decline>",
	Short: "Answer a pending consent request",
	Long: `Answer a consent request from a turn running in another terminal.

When the agent wants to run a tool whose policy is "ask", it prints the
request id and blocks. Decisions:

  accept   allow this one call
  always   allow this call and persist the policy for the tool
  decline  refuse the call; the agent sees the refusal and continues`,
	Args: cobra.ExactArgs(2),
	RunE: runConsent,
}

func init() {
	consentCmd.Flags().IntVar(&consentFlags.port, "port", 0, "NATS port of the running agent (default from config)")
}

func runConsent(cmd *cobra.Command, args []string) error {
	requestID := args[0]

	var decision consent.Decision
	switch args[1] {
	case "accept":
		decision = consent.DecisionAcceptOnce
	case "always":
		decision = consent.DecisionAcceptAlways
	case "decline":
		decision = consent.DecisionDecline
	default:
		return fmt.Errorf("unknown decision %q (want accept, always, or decline)", args[1])
	}

	nc, err := connectToAgent(consentFlags.port)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := consent.PublishResponse(nc, consent.Response{RequestID: requestID, Decision: decision}); err != nil {
		return fmt.Errorf("failed to send decision: %w", err)
	}

	fmt.Printf("Decision '%s' sent for request %s\n", decision, requestID)
	return nil
}
