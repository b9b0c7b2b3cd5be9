package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codegen-forge/forge/internal/blackboard"
	"codegen-forge/forge/internal/types"
)

var watchStatus bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest checkpoint's progress for the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := printStatus(); err != nil {
			return err
		}
		if !watchStatus {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return blackboard.Watch(ctx, outputDir, 250*time.Millisecond, func() {
			fmt.Println()
			if err := printStatus(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&watchStatus, "watch", false, "keep running, reprinting status on every checkpoint write")
}

func printStatus() error {
	path := filepath.Join(outputDir, "checkpoints", "latest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("no checkpoint found under %s: %w", outputDir, err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	fmt.Printf("status: %s\n", cp.ExecutionStatus)
	fmt.Printf("completed: %d  failed: %d  pending: %d\n", cp.CompletedCount, cp.FailedCount, cp.PendingCount)
	for _, a := range cp.Atoms {
		line := fmt.Sprintf("  %-24s %s", a.ID, a.Status)
		if a.FailureCause != "" {
			line += " (" + a.FailureCause + ")"
		}
		fmt.Println(line)
	}
	return nil
}
