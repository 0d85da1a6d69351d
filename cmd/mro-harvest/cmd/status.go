package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan, run, and output progress",
	Long: `Print the batch plan progress, the run ledger, the processed-run count,
and the last consolidation summary.

Example:
  mro-harvest status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(context.Background(), false)
	if err != nil {
		return err
	}

	plan, err := p.store.LoadPlan()
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Println("Plan: none (run 'mro-harvest plan' first)")
	} else {
		byStatus := make(map[models.BatchStatus]int)
		for _, batch := range plan {
			byStatus[batch.Status]++
		}
		fmt.Printf("Plan: %d batches (pending %d, dispatched %d, completed %d, failed %d)\n",
			len(plan),
			byStatus[models.BatchPending],
			byStatus[models.BatchDispatched],
			byStatus[models.BatchCompleted],
			byStatus[models.BatchFailed])
	}

	runs := p.tracker.Runs()
	completed, failed, inFlight := 0, 0, 0
	for _, run := range runs {
		switch run.Status {
		case models.RunCompleted:
			completed++
		case models.RunFailed:
			failed++
		default:
			inFlight++
		}
	}
	fmt.Printf("Runs: %d tracked (completed %d, failed %d, in flight %d)\n",
		len(runs), completed, failed, inFlight)

	processed, err := p.store.LoadProcessed()
	if err != nil {
		return err
	}
	fmt.Printf("Processed runs: %d\n", processed.Len())

	summary, err := p.store.LoadSummary()
	if err != nil {
		return err
	}
	if summary.ConsolidatedAt.IsZero() {
		fmt.Println("Canonical collection: not consolidated yet")
	} else {
		fmt.Printf("Canonical collection: %d items (%d duplicates removed, consolidated %s)\n",
			summary.ItemCount, summary.DuplicatesRemoved,
			summary.ConsolidatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
