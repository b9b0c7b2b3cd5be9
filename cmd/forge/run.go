package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codegen-forge/forge/internal/config"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/oracle"
	"codegen-forge/forge/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Generate a complete project from a natural-language request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun(strings.Join(args, " "), false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a run from the output directory's latest checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun("", true)
	},
}

func doRun(request string, resume bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.Initialize(outputDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging init failed: %v\n", err)
	}
	if err := logging.InitAudit(outputDir, runID()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit init failed: %v\n", err)
	}

	adapter, closeAdapter, err := buildAdapter(cfg)
	if err != nil {
		return err
	}
	defer closeAdapter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, runTimeout)
		defer timeoutCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("cancellation signal received, waiting for in-flight atoms to finish")
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	outcome, runErr := orchestrator.Run(ctx, orchestrator.Options{
		OutputDir:   outputDir,
		Request:     request,
		Description: request,
		Config:      cfg,
		Adapter:     adapter,
		Resume:      resume,
	})

	if outcome != nil {
		logger.Info("run finished",
			zap.String("status", string(outcome.Status)),
			zap.String("checkpoint", outcome.CheckpointPath),
			zap.Strings("failed_atoms", outcome.FailedAtomIDs),
		)
		if outcome.ProjectDir != "" {
			fmt.Printf("project written to %s\n", outcome.ProjectDir)
		}
	}
	return runErr
}

// buildAdapter selects the oracle.Adapter implementation from
// cfg.Oracle.Provider, so the adapter is replaceable for tests by a
// deterministic fixture.
func buildAdapter(cfg *config.Config) (oracle.Adapter, func(), error) {
	switch cfg.Oracle.Provider {
	case "fixture":
		return oracle.NewFixtureAdapter(), func() {}, nil
	default:
		a, err := oracle.NewGenAIAdapter(context.Background(), cfg.Oracle.APIKeyEnv, cfg.Oracle.Model, cfg.Oracle.TimeoutDuration())
		if err != nil {
			return nil, func() {}, err
		}
		return a, func() { _ = a.Close() }, nil
	}
}

func runID() string {
	if id := os.Getenv("FORGE_RUN_ID"); id != "" {
		return id
	}
	return "local"
}
