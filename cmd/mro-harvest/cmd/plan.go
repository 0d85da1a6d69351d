package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	planTotal     int
	planBatchSize int
	planWorkers   int
	planForce     bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build the batch plan",
	Long: `Split the item index range into fixed-size batches and persist the plan.

An existing plan with unfinished batches is kept unless --force is given.

Examples:
  mro-harvest plan --total 51000
  mro-harvest plan --total 51000 --batch-size 250 --force`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().IntVar(&planTotal, "total", 0, "total number of items to cover (overrides config)")
	planCmd.Flags().IntVar(&planBatchSize, "batch-size", 0, "items per batch (overrides config)")
	planCmd.Flags().IntVar(&planWorkers, "workers", 0, "max concurrent workers (overrides config)")
	planCmd.Flags().BoolVar(&planForce, "force", false, "replace an existing unfinished plan")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planTotal > 0 {
		cfg.Plan.TotalItems = planTotal
	}
	if planBatchSize > 0 {
		cfg.Plan.BatchSize = planBatchSize
	}
	if planWorkers > 0 {
		cfg.Plan.MaxWorkers = planWorkers
	}
	if err := cfg.ValidatePlan(); err != nil {
		return err
	}

	p, err := buildPipeline(context.Background(), false)
	if err != nil {
		return err
	}

	if err := p.planner.Plan(planForce); err != nil {
		return err
	}

	plan, err := p.store.LoadPlan()
	if err != nil {
		return err
	}
	fmt.Printf("Planned %d batches of up to %d items covering %d items\n",
		len(plan), cfg.Plan.BatchSize, cfg.Plan.TotalItems)
	return nil
}
