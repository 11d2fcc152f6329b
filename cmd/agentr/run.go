package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/mark3labs/agentr/internal/chatstore"
	"github.com/mark3labs/agentr/internal/config"
	"github.com/mark3labs/agentr/internal/consent"
	errs "github.com/mark3labs/agentr/internal/errors"
	"github.com/mark3labs/agentr/internal/hooks"
	"github.com/mark3labs/agentr/internal/logger"
	"github.com/mark3labs/agentr/internal/mcpbridge"
	"github.com/mark3labs/agentr/internal/modelclient"
	"github.com/mark3labs/agentr/internal/orchestrator"
	"github.com/mark3labs/agentr/internal/telemetry"
	"github.com/mark3labs/agentr/internal/template"
	"github.com/mark3labs/agentr/internal/tools"
	natsgo "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var runFlags struct {
	chat     string
	model    string
	maxSteps int
	readOnly bool
	dataDir  string
	template string
}

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run one agent turn against the current repository",
	Long: `Run one agent turn: the model streams a response, calls tools to read
and edit files, and the turn finalizes with a history snapshot and an
optional auto-commit.

While the turn runs, other terminals can steer it:

  agentr message -c <chat> "also update the tests"
  agentr consent <request-id> accept

Press Ctrl-C to abort; everything streamed so far is preserved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.chat, "chat", "c", "default", "Chat id (continues existing history)")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "Model override")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "Step cap override")
	runCmd.Flags().BoolVar(&runFlags.readOnly, "read-only", false, "Disable all state-mutating tools")
	runCmd.Flags().StringVar(&runFlags.dataDir, "data-dir", "", "Data directory override")
	runCmd.Flags().StringVarP(&runFlags.template, "template", "t", "", "Custom system prompt template file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cfg)

	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		if err := logger.SetFile(cfg.LogFile); err != nil {
			return err
		}
		defer logger.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := orchestrator.NewRuntime(orchestrator.RuntimeConfig{
		DataDir: cfg.DataDir,
		Port:    cfg.NATSPort,
	})
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := rt.Stop(); err != nil {
			logger.Warn("runtime shutdown: %v", err)
		}
	}()

	registry, err := tools.NewBuiltinRegistry()
	if err != nil {
		return err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	client, err := modelclient.NewEinoClient(ctx, modelclient.EinoConfig{
		Model:   cfg.Model,
		APIKey:  apiKey,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return err
	}

	var bridge *mcpbridge.Bridge
	if len(cfg.MCPServers) > 0 {
		bridge = mcpbridge.New(cfg.MCPServers)
		defer bridge.Close()
	}

	prompt := strings.Join(args, " ")

	hookCfg, err := hooks.LoadConfig(rt.WorkDir())
	if err != nil {
		return err
	}
	hookVars := hooks.Variables{Chat: runFlags.chat, Prompt: prompt}
	extra, err := hooks.ExecuteAllPiped(ctx, hookCfg.Hooks.PreTurn, rt.WorkDir(), hookVars)
	if err != nil {
		return fmt.Errorf("pre-turn hook: %w", err)
	}

	system, err := renderSystemPrompt(rt.WorkDir(), runFlags.chat, extra)
	if err != nil {
		return err
	}

	turn := orchestrator.NewTurn(orchestrator.TurnConfig{
		ChatID:       runFlags.chat,
		RepoPath:     rt.WorkDir(),
		SystemPrompt: system,
		MaxSteps:     cfg.MaxSteps,
		ReadOnly:     cfg.ReadOnly,
		AutoCommit:   cfg.AutoCommit,
	}, orchestrator.TurnDeps{
		Client:   client,
		Registry: registry,
		Broker:   rt.Broker(),
		Store:    rt.Store(),
		Bridge:   bridge,
		Sink:     newConsoleSink(),
		OnText:   func(s string) { fmt.Print(s) },
	})

	// Mid-turn messages from 'agentr message' land in the pending queue.
	msgTransport := chatstore.NewMessageTransport(rt.Conn())
	if err := msgTransport.Listen(runFlags.chat, turn.Agent().EnqueueUserMessage); err != nil {
		return err
	}
	defer msgTransport.Close()

	// Consent requests print instructions for a second terminal.
	consentSub, err := printConsentRequests(rt.Conn())
	if err != nil {
		return err
	}
	defer consentSub.Unsubscribe()

	summary, runErr := turn.Run(ctx, prompt)
	fmt.Println()
	printSummary(summary)

	if runErr != nil && !errors.Is(runErr, errs.ErrTurnCancelled) {
		if _, hookErr := hooks.ExecuteAllPiped(context.WithoutCancel(ctx), hookCfg.Hooks.OnError, rt.WorkDir(), hookVars); hookErr != nil {
			logger.Warn("on-error hook: %v", hookErr)
		}
		return runErr
	}

	if _, hookErr := hooks.ExecuteAllPiped(context.WithoutCancel(ctx), hookCfg.Hooks.PostTurn, rt.WorkDir(), hookVars); hookErr != nil {
		logger.Warn("post-turn hook: %v", hookErr)
	}
	return nil
}

func applyRunFlags(cfg *config.Config) {
	if runFlags.model != "" {
		cfg.Model = runFlags.model
	}
	if runFlags.maxSteps > 0 {
		cfg.MaxSteps = runFlags.maxSteps
	}
	if runFlags.readOnly {
		cfg.ReadOnly = true
	}
	if runFlags.dataDir != "" {
		cfg.DataDir = runFlags.dataDir
	}
}

// renderSystemPrompt renders the built-in template or a user-supplied one.
func renderSystemPrompt(workDir, chat, extra string) (string, error) {
	tmpl := template.DefaultTemplate
	if runFlags.template != "" {
		data, err := os.ReadFile(runFlags.template)
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		tmpl = string(data)
	}
	return template.Render(tmpl, template.Variables{
		WorkDir: workDir,
		Chat:    chat,
		Extra:   extra,
	}), nil
}

// printConsentRequests subscribes to the consent request subject and prints
// each pending request with the command that answers it.
func printConsentRequests(nc *natsgo.Conn) (*natsgo.Subscription, error) {
	warnStyle := lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	return nc.Subscribe(consent.SubjectRequest, func(msg *natsgo.Msg) {
		var req consent.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		fmt.Println()
		fmt.Println(warnStyle.Render(fmt.Sprintf("Consent needed: %s", req.ToolName)))
		if req.InputPreview != "" {
			fmt.Println(req.InputPreview)
		}
		fmt.Printf("Answer with: agentr consent %s accept|always|decline\n", req.RequestID)
	})
}

func printSummary(summary *telemetry.Summary) {
	if summary == nil {
		return
	}
	mutedStyle := lipgloss.NewStyle().Foreground(colorMuted)

	var parts []string
	parts = append(parts, fmt.Sprintf("%d steps", len(summary.AICalls)))
	parts = append(parts, fmt.Sprintf("%d tool calls", len(summary.ToolCalls)))
	if summary.TokenUsage != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", summary.TokenUsage.TotalTokens))
	}
	if !summary.Timing.CompletedAt.IsZero() {
		parts = append(parts, summary.Timing.CompletedAt.Sub(summary.Timing.StartedAt).Round(time.Millisecond).String())
	}
	if summary.WasCancelled {
		parts = append(parts, "cancelled")
	}
	fmt.Println(mutedStyle.Render(strings.Join(parts, " | ")))

	for _, e := range summary.Errors {
		fmt.Println(lipgloss.NewStyle().Foreground(colorError).Render("error: " + e))
	}
}

// consoleSink prints authoritative tool markup to stdout. Incremental
// previews are dropped; the terminal has no way to supersede them in place.
type consoleSink struct{}

func newConsoleSink() *consoleSink { return &consoleSink{} }

func (s *consoleSink) EmitIncremental(string) {}

func (s *consoleSink) EmitFinal(block string) {
	fmt.Println()
	fmt.Println(lipgloss.NewStyle().Foreground(colorMuted).Render(block))
}
