package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/wharf/pkg/rollout"
	"github.com/spf13/cobra"
)

var rolloutCmd = &cobra.Command{
	Use:   "rollout RELEASE_ID",
	Short: "Roll a release out to its cluster",
	Long: `Run a rollout for RELEASE_ID in the foreground and print progress.

The command exits non-zero when the rollout fails. Ctrl+C cancels the
rollout; the release is left in whatever phase it reached.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		releaseID := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := newOrchestrator(ctx, cfg, store, nil)
		if err != nil {
			return err
		}

		fmt.Printf("Rolling out release %s...\n", releaseID)
		res, err := orch.Rollout(ctx, releaseID, func(msg string) {
			fmt.Println("  " + msg)
		})
		if err != nil {
			return fmt.Errorf("rollout finished but finalize failed: %v", err)
		}
		return printResult(res)
	},
}

func printResult(res *rollout.Result) error {
	fmt.Println()
	if res.Failed() {
		fmt.Fprintf(os.Stderr, "✗ Rollout failed\n\n%s\n", res.Error)
		return fmt.Errorf("release %s failed", res.ReleaseID)
	}
	fmt.Printf("✓ Release %s is active", res.Release.ID)
	if res.Release.Endpoint != "" {
		fmt.Printf(" at %s", res.Release.Endpoint)
	}
	fmt.Println()
	return nil
}
