// Package main is the forge CLI entry point: a cobra root command with
// persistent flags, a zap logger initialized in PersistentPreRunE and
// synced in PersistentPostRun, and subcommands split across one file per
// concern.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codegen-forge/forge/internal/logging"
)

var (
	verbose     bool
	outputDir   string
	configPath  string
	runTimeout  time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - generates a complete source-code project from a natural-language request",
	Long: `forge decomposes a single natural-language request into a DAG of
atomic code-generation tasks, freezes a shared contract catalog, drives
each task through a generate/compile/classify/repair loop, and merges the
results into one compilable, deduplicated project.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", ".", "Output directory for the generated project")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forge.yaml", "Path to forge.yaml")
	rootCmd.PersistentFlags().DurationVar(&runTimeout, "timeout", 0, "Overall run timeout (0 = none, per-atom oracle timeouts still apply)")

	rootCmd.AddCommand(runCmd, resumeCmd, statusCmd, showContractsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
