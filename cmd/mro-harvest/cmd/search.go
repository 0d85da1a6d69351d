package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mostafazog/mro-harvest/internal/search"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the exported canonical items",
	Long: `Search items previously exported with 'consolidate --index'.

Examples:
  # Basic search
  mro-harvest search "cordless drill"

  # Limit results
  mro-harvest search "gloves" --limit 5

  # JSON output for scripting
  mro-harvest search "acme" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]

	client, err := search.New(cfg.Search)
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	items, err := client.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(items))
	for i, item := range items {
		fmt.Printf("--- Result %d ---\n", i+1)
		fmt.Printf("Name:  %v\n", item["name"])
		fmt.Printf("URL:   %v\n", item["url"])
		if brand, ok := item["brand"]; ok {
			fmt.Printf("Brand: %v\n", brand)
		}
		if price, ok := item["price"]; ok {
			fmt.Printf("Price: %v\n", price)
		}
		fmt.Println()
	}
	return nil
}
