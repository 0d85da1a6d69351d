package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mostafazog/mro-harvest/internal/service"
)

var (
	runInterval      time.Duration
	runRetryFailed   bool
	runMetricsListen string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Continuous fetch + consolidate loop",
	Long: `Run the harvest loop: each cycle dispatches what the plan allows, ingests
completed runs, and consolidates when new data arrived. Stops cleanly on
SIGINT/SIGTERM after the in-flight cycle.

Examples:
  mro-harvest run
  mro-harvest run --interval 2m --retry-failed
  mro-harvest run --metrics-listen :9090`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "poll interval (overrides config)")
	runCmd.Flags().BoolVar(&runRetryFailed, "retry-failed", false, "re-queue failed batches each cycle")
	runCmd.Flags().StringVar(&runMetricsListen, "metrics-listen", "", "address for the Prometheus /metrics endpoint")
}

func runService(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runInterval > 0 {
		cfg.Service.PollInterval = runInterval
	}
	if runMetricsListen != "" {
		cfg.Service.MetricsListen = runMetricsListen
	}

	p, err := buildPipeline(ctx, true)
	if err != nil {
		return err
	}

	svc := service.New(cfg.Service, p.store, p.planner, p.fetcher, p.merger, p.metrics, runRetryFailed)
	return svc.Run(ctx)
}
