// Package consolidator merges every staged run into one deduplicated
// canonical collection. The merge is total: each pass recomputes from all
// staged data rather than patching the previous output, so repeated passes
// on unchanged input are byte-identical and merge-order bugs cannot
// accumulate.
package consolidator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/mostafazog/mro-harvest/internal/metrics"
	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Output filenames inside the output directory.
const (
	JSONFile = "consolidated_products.json"
	CSVFile  = "consolidated_products.csv"
)

// Mirror receives copies of the canonical output files.
type Mirror interface {
	PutCanonicalFile(ctx context.Context, filename string, data []byte) error
}

// Consolidator produces the canonical collection from staged runs.
type Consolidator struct {
	staging   *staging.Store
	store     *state.Store
	outputDir string
	mirror    Mirror
	metrics   *metrics.Metrics
}

// New creates a Consolidator. mirror and metrics may be nil.
func New(stg *staging.Store, store *state.Store, outputDir string, mirror Mirror, m *metrics.Metrics) *Consolidator {
	return &Consolidator{staging: stg, store: store, outputDir: outputDir, mirror: mirror, metrics: m}
}

// Stats describes one consolidation pass.
type Stats struct {
	UniqueItems       int
	TotalStaged       int
	DuplicatesRemoved int
	SkippedIncomplete int
	PerRun            map[string]int // records each run contributed to the canonical set
}

// Consolidate merges all staged records and writes both canonical
// serializations atomically.
func (c *Consolidator) Consolidate(ctx context.Context) (Stats, error) {
	items, stats, err := c.merge(ctx)
	if err != nil {
		return stats, err
	}

	if err := c.writeOutputs(ctx, items); err != nil {
		return stats, err
	}

	if err := c.store.SaveSummary(state.Summary{
		ItemCount:         stats.UniqueItems,
		DuplicatesRemoved: stats.DuplicatesRemoved,
		ConsolidatedAt:    time.Now().UTC(),
	}); err != nil {
		return stats, err
	}

	c.metrics.ObserveConsolidation(stats.UniqueItems, stats.DuplicatesRemoved)
	slog.Info("consolidation complete",
		"unique_items", stats.UniqueItems,
		"duplicates_removed", stats.DuplicatesRemoved,
		"skipped", stats.SkippedIncomplete,
		"runs", len(stats.PerRun))
	return stats, nil
}

// Items returns the current canonical collection without touching the
// output files. Used by the search export.
func (c *Consolidator) Items(ctx context.Context) ([]models.Record, error) {
	items, _, err := c.merge(ctx)
	return items, err
}

// merge recomputes the canonical set from every staged run.
func (c *Consolidator) merge(ctx context.Context) ([]models.Record, Stats, error) {
	stats := Stats{PerRun: make(map[string]int)}

	runIDs, err := c.staging.ListRunIDs()
	if err != nil {
		return nil, stats, err
	}

	best := make(map[string]models.Record)
	for _, runID := range runIDs {
		if ctx.Err() != nil {
			return nil, stats, ctx.Err()
		}
		records, err := c.staging.ReadRun(runID)
		if err != nil {
			// A single unreadable staging file must not block the rest.
			slog.Warn("skipping unreadable staged run", "run_id", runID, "error", err)
			continue
		}
		for _, record := range records {
			stats.TotalStaged++
			if skipRecord(record) {
				stats.SkippedIncomplete++
				continue
			}
			key := record.IdentityKey()
			existing, seen := best[key]
			if !seen {
				best[key] = record
				continue
			}
			stats.DuplicatesRemoved++
			if wins(record, existing) {
				best[key] = record
			}
		}
	}

	items := sortedItems(best)
	stats.UniqueItems = len(items)
	for _, item := range items {
		stats.PerRun[item.SourceRunID]++
	}
	return items, stats, nil
}

// skipRecord drops records that cannot contribute to the canonical set:
// worker error placeholders, records without a name, and records without an
// identity key.
func skipRecord(r models.Record) bool {
	if r.Validate() != nil {
		return true
	}
	if r.Fields["error"] != "" {
		return true
	}
	if r.Fields["name"] == "" {
		return true
	}
	return false
}

// wins reports whether challenger beats incumbent for the same identity key.
// The order is total: completeness first, then fetch recency, then source
// run ID, so the outcome never depends on staging iteration order.
func wins(challenger, incumbent models.Record) bool {
	cc, ic := challenger.Completeness(), incumbent.Completeness()
	if cc != ic {
		return cc > ic
	}
	if !challenger.FetchedAt.Equal(incumbent.FetchedAt) {
		return challenger.FetchedAt.After(incumbent.FetchedAt)
	}
	return challenger.SourceRunID > incumbent.SourceRunID
}

func sortedItems(best map[string]models.Record) []models.Record {
	items := make([]models.Record, 0, len(best))
	for _, record := range best {
		items = append(items, record)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].IdentityKey() < items[j].IdentityKey()
	})
	return items
}

func (c *Consolidator) writeOutputs(ctx context.Context, items []models.Record) error {
	jsonData, err := encodeJSON(items)
	if err != nil {
		return err
	}
	csvData, err := encodeCSV(items)
	if err != nil {
		return err
	}

	jsonPath := filepath.Join(c.outputDir, JSONFile)
	if err := state.WriteFileAtomic(jsonPath, jsonData); err != nil {
		return fmt.Errorf("write canonical JSON: %w", err)
	}
	csvPath := filepath.Join(c.outputDir, CSVFile)
	if err := state.WriteFileAtomic(csvPath, csvData); err != nil {
		return fmt.Errorf("write canonical CSV: %w", err)
	}

	if c.mirror != nil {
		if err := c.mirror.PutCanonicalFile(ctx, JSONFile, jsonData); err != nil {
			slog.Warn("canonical mirror failed", "file", JSONFile, "error", err)
		}
		if err := c.mirror.PutCanonicalFile(ctx, CSVFile, csvData); err != nil {
			slog.Warn("canonical mirror failed", "file", CSVFile, "error", err)
		}
	}
	return nil
}
