// Package worker processes a planned batch in-process instead of dispatching
// it to remote compute. Pages are fetched from a URL template over the
// batch's index range and the extracted records are staged under a locally
// generated run id, exactly as if they had been fetched from the registry.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// visitedCacheSize bounds the cross-batch URL cache.
const visitedCacheSize = 4096

// Worker scrapes product pages for one batch at a time.
type Worker struct {
	config  config.Worker
	staging *staging.Store
	visited *lru.Cache[string, bool]
}

// New creates a Worker. The URL template must contain a %d placeholder for
// the item index.
func New(cfg config.Worker, stg *staging.Store) (*Worker, error) {
	if cfg.URLTemplate == "" {
		return nil, fmt.Errorf("%w: worker URL template is required", config.ErrInvalid)
	}
	if !strings.Contains(cfg.URLTemplate, "%d") {
		return nil, fmt.Errorf("%w: worker URL template needs a %%d placeholder, got %q", config.ErrInvalid, cfg.URLTemplate)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mro-harvest/1.0"
	}

	visited, err := lru.New[string, bool](visitedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Worker{config: cfg, staging: stg, visited: visited}, nil
}

// Result summarizes one locally processed batch.
type Result struct {
	RunID   string
	Records int
	Failed  int
	Skipped int // already visited this process lifetime
}

// ProcessBatch fetches every page in the batch's index range and stages the
// extracted records. A page that fails yields an error record so the failure
// stays visible downstream; it never aborts the batch.
func (w *Worker) ProcessBatch(ctx context.Context, batch models.Batch) (Result, error) {
	runID := registry.LocalRunPrefix + uuid.NewString()
	result := Result{RunID: runID}

	slog.Info("processing batch locally",
		"batch", batch.Index, "start", batch.Start, "end", batch.End, "run_id", runID)

	var mu sync.Mutex
	var records []models.Record
	fetchedAt := time.Now().UTC()

	c := colly.NewCollector(colly.UserAgent(w.config.UserAgent))
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       w.config.Delay,
		Parallelism: w.config.Parallelism,
	})
	c.SetRequestTimeout(w.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pageURL := e.Request.URL.String()
		fields := parseProduct(e, pageURL)
		mu.Lock()
		records = append(records, models.Record{
			Fields:      fields,
			SourceRunID: runID,
			FetchedAt:   fetchedAt,
		})
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		pageURL := r.Request.URL.String()
		slog.Debug("page fetch failed", "url", pageURL, "error", err)
		mu.Lock()
		records = append(records, models.Record{
			Fields: map[string]string{
				models.IdentityField: pageURL,
				"error":              err.Error(),
			},
			SourceRunID: runID,
			FetchedAt:   fetchedAt,
		})
		result.Failed++
		mu.Unlock()
	})

	for i := batch.Start; i < batch.End; i++ {
		if ctx.Err() != nil {
			break
		}
		pageURL := fmt.Sprintf(w.config.URLTemplate, i)
		if w.visited.Contains(pageURL) {
			result.Skipped++
			continue
		}
		if err := c.Visit(pageURL); err != nil {
			slog.Debug("visit error (continuing)", "url", pageURL, "error", err)
		}
		w.visited.Add(pageURL, true)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := w.staging.WriteRun(runID, records); err != nil {
		return result, err
	}
	result.Records = len(records)

	slog.Info("batch staged locally",
		"batch", batch.Index, "run_id", runID, "records", result.Records, "failed", result.Failed)
	return result, nil
}
