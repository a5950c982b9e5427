package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/socialtracker/internal/agent"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/config"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the browser native messaging agent",
	Long: `Run the tab tracking agent as a browser native messaging host. Messages are
read from stdin and answered on stdout; logs go to stderr.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// stdout carries native messages
	logger := setupLogger(cfg.Logging, os.Stderr)

	classifier, err := platform.NewClassifier(cfg.Agent.ClassifierCacheSize)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}

	credentials := agent.NewCredentials(cfg.Agent.Token)
	client := agent.NewClient(agent.ClientConfig{
		BaseURL:  cfg.Agent.ServerURL,
		Timeout:  config.Duration(cfg.Agent.RequestTimeout, 10*time.Second),
		RetryMax: cfg.Agent.RetryMax,
	}, credentials, logger)

	tracker := agent.New(client, classifier, credentials, clock.RealClock{}, cfg.Location(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("server", cfg.Agent.ServerURL).
		Bool("signed_in", cfg.Agent.Token != "").
		Msg("Agent started")

	err = agent.NewHost(tracker, os.Stdin, os.Stdout, logger).
		WithLimitCheck(config.Duration(cfg.Agent.LimitCheckInterval, agent.DefaultLimitCheckInterval)).
		Serve(ctx)

	// Anything still open is ended before exit.
	tracker.OnWindowFocusLost(context.Background())

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("native messaging: %w", err)
	}
	logger.Info().Msg("Agent stopped")
	return nil
}
