package consolidator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

func newFixture(t *testing.T) (*Consolidator, *staging.Store, string) {
	t.Helper()
	store, err := state.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stg, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	outputDir := t.TempDir()
	return New(stg, store, outputDir, nil, nil), stg, outputDir
}

func record(runID, url string, fetchedAt time.Time, extra map[string]string) models.Record {
	fields := map[string]string{"url": url, "name": "Widget"}
	for k, v := range extra {
		fields[k] = v
	}
	return models.Record{Fields: fields, SourceRunID: runID, FetchedAt: fetchedAt}
}

func TestConsolidateDedupByCompleteness(t *testing.T) {
	c, stg, outputDir := newFixture(t)
	now := time.Now().UTC()

	// Same key: one record with 3 populated fields, one with 5.
	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", now, map[string]string{"price": "5"}),
	})
	stg.WriteRun("r2", []models.Record{
		record("r2", "https://x/p/1", now, map[string]string{"price": "5", "sku": "W-1", "brand": "Acme"}),
	})

	stats, err := c.Consolidate(context.Background())
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if stats.UniqueItems != 1 {
		t.Errorf("unique items = %d, want 1", stats.UniqueItems)
	}
	if stats.DuplicatesRemoved != 1 {
		t.Errorf("duplicates removed = %d, want 1", stats.DuplicatesRemoved)
	}

	items := readJSON(t, outputDir)
	if len(items) != 1 {
		t.Fatalf("output has %d items, want 1", len(items))
	}
	if items[0]["sku"] != "W-1" || items[0]["brand"] != "Acme" {
		t.Errorf("less complete record won: %v", items[0])
	}
}

func TestConsolidateMergeScenario(t *testing.T) {
	// Records {url a, name X} and {url a, name X, price 5} yield exactly one
	// record with both name and price.
	c, stg, outputDir := newFixture(t)
	now := time.Now().UTC()

	stg.WriteRun("r1", []models.Record{
		{Fields: map[string]string{"url": "a", "name": "X"}, SourceRunID: "r1", FetchedAt: now},
		{Fields: map[string]string{"url": "a", "name": "X", "price": "5"}, SourceRunID: "r1", FetchedAt: now},
	})

	stats, err := c.Consolidate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.UniqueItems != 1 {
		t.Fatalf("unique items = %d, want 1", stats.UniqueItems)
	}

	items := readJSON(t, outputDir)
	if items[0]["name"] != "X" || items[0]["price"] != "5" {
		t.Errorf("merged record = %v, want name and price populated", items[0])
	}
}

func TestConsolidateCompletenessTieBreaksOnRecency(t *testing.T) {
	c, stg, outputDir := newFixture(t)
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", older, map[string]string{"price": "5"}),
	})
	stg.WriteRun("r2", []models.Record{
		record("r2", "https://x/p/1", newer, map[string]string{"price": "7"}),
	})

	if _, err := c.Consolidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	items := readJSON(t, outputDir)
	if items[0]["price"] != "7" {
		t.Errorf("price = %q, most recent fetch should win the tie", items[0]["price"])
	}
}

func TestConsolidateIdempotentByteIdentical(t *testing.T) {
	c, stg, outputDir := newFixture(t)
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", now, nil),
		record("r1", "https://x/p/2", now, map[string]string{"price": "3"}),
	})
	stg.WriteRun("r2", []models.Record{
		record("r2", "https://x/p/3", now, nil),
	})

	if _, err := c.Consolidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	json1 := readFile(t, outputDir, JSONFile)
	csv1 := readFile(t, outputDir, CSVFile)

	if _, err := c.Consolidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if readFile(t, outputDir, JSONFile) != json1 {
		t.Error("second pass produced different JSON on unchanged input")
	}
	if readFile(t, outputDir, CSVFile) != csv1 {
		t.Error("second pass produced different CSV on unchanged input")
	}
}

func TestConsolidateMonotonicItemCount(t *testing.T) {
	c, stg, _ := newFixture(t)
	now := time.Now().UTC()

	previous := 0
	for i, urls := range [][]string{
		{"https://x/p/1"},
		{"https://x/p/2", "https://x/p/1"},
		{"https://x/p/3"},
	} {
		var records []models.Record
		for _, u := range urls {
			records = append(records, record("r"+string(rune('1'+i)), u, now, nil))
		}
		stg.WriteRun("r"+string(rune('1'+i)), records)

		stats, err := c.Consolidate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.UniqueItems < previous {
			t.Errorf("pass %d: item count %d < previous %d", i, stats.UniqueItems, previous)
		}
		previous = stats.UniqueItems
	}
	if previous != 3 {
		t.Errorf("final item count = %d, want 3", previous)
	}
}

func TestConsolidateSkipsErrorAndIncompleteRecords(t *testing.T) {
	c, stg, _ := newFixture(t)
	now := time.Now().UTC()

	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", now, nil),
		{Fields: map[string]string{"url": "https://x/p/2", "name": "Bad", "error": "blocked"}, SourceRunID: "r1", FetchedAt: now},
		{Fields: map[string]string{"url": "https://x/p/3"}, SourceRunID: "r1", FetchedAt: now}, // no name
		{Fields: map[string]string{"name": "NoURL"}, SourceRunID: "r1", FetchedAt: now},
	})

	stats, err := c.Consolidate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.UniqueItems != 1 {
		t.Errorf("unique items = %d, want 1", stats.UniqueItems)
	}
	if stats.SkippedIncomplete != 3 {
		t.Errorf("skipped = %d, want 3", stats.SkippedIncomplete)
	}
}

func TestCSVColumnOrderURLFirstThenSorted(t *testing.T) {
	c, stg, outputDir := newFixture(t)
	now := time.Now().UTC()

	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", now, map[string]string{"price": "5", "brand": "Acme"}),
		record("r1", "https://x/p/2", now, map[string]string{"sku": "W-2"}),
	})

	if _, err := c.Consolidate(context.Background()); err != nil {
		t.Fatal(err)
	}

	header := strings.SplitN(readFile(t, outputDir, CSVFile), "\n", 2)[0]
	if header != "url,brand,name,price,sku" {
		t.Errorf("csv header = %q, want url first then sorted union", header)
	}
}

func TestPerRunContributions(t *testing.T) {
	c, stg, _ := newFixture(t)
	now := time.Now().UTC()

	stg.WriteRun("r1", []models.Record{
		record("r1", "https://x/p/1", now, nil),
		record("r1", "https://x/p/2", now, nil),
	})
	stg.WriteRun("r2", []models.Record{
		record("r2", "https://x/p/3", now, nil),
	})

	stats, err := c.Consolidate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.PerRun["r1"] != 2 || stats.PerRun["r2"] != 1 {
		t.Errorf("per-run contributions = %v", stats.PerRun)
	}
}

func TestConsolidateSavesSummary(t *testing.T) {
	store, err := state.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stg, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := New(stg, store, t.TempDir(), nil, nil)

	now := time.Now().UTC()
	stg.WriteRun("r1", []models.Record{record("r1", "https://x/p/1", now, nil)})

	if _, err := c.Consolidate(context.Background()); err != nil {
		t.Fatal(err)
	}

	sum, err := store.LoadSummary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.ItemCount != 1 {
		t.Errorf("summary item count = %d, want 1", sum.ItemCount)
	}
	if sum.ConsolidatedAt.IsZero() {
		t.Error("summary timestamp not set")
	}
}

func readJSON(t *testing.T, outputDir string) []map[string]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outputDir, JSONFile))
	if err != nil {
		t.Fatal(err)
	}
	var items []map[string]string
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatal(err)
	}
	return items
}

func readFile(t *testing.T, outputDir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outputDir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
