package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mostafazog/mro-harvest/internal/consolidator"
	"github.com/mostafazog/mro-harvest/internal/search"
)

var consolidateIndex bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge staged runs into the canonical output files",
	Long: `Re-merge every staged run into the deduplicated canonical collection and
write both output files. The merge is total, so repeated runs on unchanged
staging produce byte-identical outputs.

--index additionally exports the canonical items to Elasticsearch.

Examples:
  mro-harvest consolidate
  mro-harvest consolidate --index`,
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().BoolVar(&consolidateIndex, "index", false, "export canonical items to Elasticsearch")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, false)
	if err != nil {
		return err
	}

	stats, err := p.merger.Consolidate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Unique items: %d (from %d staged records)\n", stats.UniqueItems, stats.TotalStaged)
	fmt.Printf("Duplicates removed: %d, Skipped: %d\n", stats.DuplicatesRemoved, stats.SkippedIncomplete)
	fmt.Printf("Outputs: %s, %s\n",
		filepath.Join(cfg.Paths.OutputDir, consolidator.JSONFile),
		filepath.Join(cfg.Paths.OutputDir, consolidator.CSVFile))

	if consolidateIndex {
		return exportToSearch(ctx, p)
	}
	return nil
}

func exportToSearch(ctx context.Context, p *pipeline) error {
	client, err := search.New(cfg.Search)
	if err != nil {
		return err
	}
	if err := client.CreateIndex(ctx); err != nil {
		return err
	}

	items, err := p.merger.Items(ctx)
	if err != nil {
		return err
	}

	count, err := client.ExportItems(ctx, items)
	if err != nil {
		return fmt.Errorf("search export: %w", err)
	}
	fmt.Printf("Indexed %d items into %q\n", count, cfg.Search.Index)
	return nil
}
