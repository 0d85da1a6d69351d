package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	dispatchRetryFailed bool
	dispatchRecover     bool
	dispatchWorkers     int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending batches to registry workers",
	Long: `Dispatch pending batches, bounded by the free worker slots.

Batches are marked dispatched before submission so a crash can only lose a
submission, never double-count one. --recover first re-queues batches whose
run no longer exists in the registry.

Examples:
  mro-harvest dispatch
  mro-harvest dispatch --retry-failed
  mro-harvest dispatch --recover`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().BoolVar(&dispatchRetryFailed, "retry-failed", false, "re-queue failed batches before dispatching")
	dispatchCmd.Flags().BoolVar(&dispatchRecover, "recover", false, "re-queue dispatched batches whose run vanished from the registry")
	dispatchCmd.Flags().IntVar(&dispatchWorkers, "workers", 0, "max concurrent workers (overrides config)")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dispatchWorkers > 0 {
		cfg.Plan.MaxWorkers = dispatchWorkers
	}
	if err := cfg.ValidateDispatch(); err != nil {
		return err
	}
	p, err := buildPipeline(ctx, true)
	if err != nil {
		return err
	}

	if dispatchRecover {
		requeued, err := p.planner.Recover(ctx)
		if err != nil {
			return err
		}
		if requeued > 0 {
			fmt.Printf("Re-queued %d orphaned batches\n", requeued)
		}
	}

	result, err := p.planner.Dispatch(ctx, dispatchRetryFailed)
	if err != nil {
		return err
	}

	fmt.Printf("Dispatched: %d, Failed: %d, Re-queued: %d\n",
		result.Dispatched, result.Failed, result.Requeued)
	fmt.Printf("Pending: %d, In flight: %d\n", result.Pending, result.InFlight)
	return nil
}
