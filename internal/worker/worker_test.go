package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

const productPage = `<html><head><title>P%d</title></head><body>
	<h1 itemprop="name">Widget %d</h1>
	<span itemprop="price" content="19.99">$19.99</span>
	<span itemprop="sku">W-%d</span>
	<span itemprop="brand">Acme</span>
	<img itemprop="image" src="/img/%d.jpg">
	<div class="description"><p>A <strong>sturdy</strong> widget.</p></div>
</body></html>`

func productServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var i int
		if _, err := fmt.Sscanf(r.URL.Path, "/product/%d", &i); err != nil {
			http.NotFound(w, r)
			return
		}
		if i >= 900 {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, productPage, i, i, i, i)
	}))
	t.Cleanup(server.Close)
	return server
}

func newWorker(t *testing.T, server *httptest.Server) (*Worker, *staging.Store) {
	t.Helper()
	stg, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := New(config.Worker{
		URLTemplate: server.URL + "/product/%d",
		Delay:       time.Millisecond,
		Parallelism: 2,
		UserAgent:   "test-agent",
	}, stg)
	if err != nil {
		t.Fatal(err)
	}
	return w, stg
}

func TestNew_Validation(t *testing.T) {
	stg, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(config.Worker{}, stg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() without template error = %v, want config.ErrInvalid", err)
	}
	if _, err := New(config.Worker{URLTemplate: "https://x/p/all"}, stg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() without placeholder error = %v, want config.ErrInvalid", err)
	}
}

func TestProcessBatchStagesParsedRecords(t *testing.T) {
	server := productServer(t)
	w, stg := newWorker(t, server)

	batch := models.Batch{Index: 0, Start: 1, End: 4}
	result, err := w.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if result.Records != 3 || result.Failed != 0 {
		t.Errorf("result = %+v, want 3 records / 0 failed", result)
	}
	if !strings.HasPrefix(result.RunID, registry.LocalRunPrefix) {
		t.Errorf("run id = %q, want %q prefix", result.RunID, registry.LocalRunPrefix)
	}

	records, err := stg.ReadRun(result.RunID)
	if err != nil {
		t.Fatalf("ReadRun() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("staged %d records, want 3", len(records))
	}

	byName := make(map[string]models.Record)
	for _, r := range records {
		byName[r.Fields["name"]] = r
	}
	r, ok := byName["Widget 1"]
	if !ok {
		t.Fatalf("Widget 1 not staged: %v", byName)
	}
	if r.Fields["price"] != "19.99" {
		t.Errorf("price = %q, want microdata content attribute", r.Fields["price"])
	}
	if r.Fields["sku"] != "W-1" || r.Fields["brand"] != "Acme" {
		t.Errorf("fields = %v", r.Fields)
	}
	if r.Fields["images"] != `["/img/1.jpg"]` {
		t.Errorf("images = %q, want JSON array", r.Fields["images"])
	}
	if !strings.Contains(r.Fields["description"], "**sturdy**") {
		t.Errorf("description = %q, want markdown emphasis", r.Fields["description"])
	}
	if r.SourceRunID != result.RunID {
		t.Errorf("record run id = %q, want %q", r.SourceRunID, result.RunID)
	}
}

func TestProcessBatchRecordsErrorsWithoutAborting(t *testing.T) {
	server := productServer(t)
	w, stg := newWorker(t, server)

	// Indexes 900+ return 403 from the test server.
	batch := models.Batch{Index: 9, Start: 899, End: 902}
	result, err := w.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if result.Failed != 2 {
		t.Errorf("failed = %d, want 2", result.Failed)
	}
	if result.Records != 3 {
		t.Errorf("records = %d, want 3 (error records included)", result.Records)
	}

	records, err := stg.ReadRun(result.RunID)
	if err != nil {
		t.Fatal(err)
	}
	errored := 0
	for _, r := range records {
		if r.Fields["error"] != "" {
			errored++
			if r.Fields["url"] == "" {
				t.Error("error record lost its url")
			}
		}
	}
	if errored != 2 {
		t.Errorf("error records = %d, want 2", errored)
	}
}

func TestProcessBatchSkipsVisitedURLs(t *testing.T) {
	server := productServer(t)
	w, _ := newWorker(t, server)

	batch := models.Batch{Index: 0, Start: 1, End: 3}
	if _, err := w.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	result, err := w.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2 (all URLs seen this process)", result.Skipped)
	}
	if result.Records != 0 {
		t.Errorf("records = %d, want 0", result.Records)
	}
}
