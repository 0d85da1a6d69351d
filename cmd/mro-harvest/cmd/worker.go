package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mostafazog/mro-harvest/internal/worker"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

var workerBatch int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process one batch locally without remote workers",
	Long: `Scrape one planned batch in-process and stage the records under a local
run id, exactly as if the batch had been dispatched to the registry. Useful
for smoke-testing the pipeline end to end.

Requires worker.url_template in the configuration.

Example:
  mro-harvest worker --batch 3`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerBatch, "batch", -1, "index of the planned batch to process")
	workerCmd.MarkFlagRequired("batch")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, false)
	if err != nil {
		return err
	}

	plan, err := p.store.LoadPlan()
	if err != nil {
		return err
	}
	if workerBatch < 0 || workerBatch >= len(plan) {
		return fmt.Errorf("batch %d not in plan (have %d batches)", workerBatch, len(plan))
	}
	batch := plan[workerBatch]
	if batch.Status == models.BatchCompleted {
		fmt.Printf("Batch %d is already completed (run %s)\n", batch.Index, batch.RunID)
		return nil
	}

	w, err := worker.New(cfg.Worker, p.staging)
	if err != nil {
		return err
	}

	result, err := w.ProcessBatch(ctx, batch)
	if err != nil {
		return err
	}

	// Reflect the local run into the plan and ledger like a registry run.
	if err := p.tracker.RecordDispatch(result.RunID, []int{batch.Index}, time.Now().UTC()); err != nil {
		return err
	}
	if err := p.tracker.MarkCompleted(result.RunID); err != nil {
		return err
	}
	if err := p.tracker.MarkProcessed(result.RunID); err != nil {
		return err
	}
	plan[workerBatch].Status = models.BatchCompleted
	plan[workerBatch].RunID = result.RunID
	if err := p.store.SavePlan(plan); err != nil {
		return err
	}

	fmt.Printf("Batch %d staged as run %s: %d records (%d failed, %d skipped)\n",
		batch.Index, result.RunID, result.Records, result.Failed, result.Skipped)
	return nil
}
