// Package fetcher polls the job registry for completed runs, downloads their
// artifact bundles, and extracts raw item records into staging. Adding a run
// to the processed registry is the commit point: it happens only after
// staging succeeds, and staging overwrites per run, so a crash in between
// just means the run is fetched again next cycle.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mostafazog/mro-harvest/internal/faultlog"
	"github.com/mostafazog/mro-harvest/internal/metrics"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/internal/tracker"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Registry is the subset of the job-registry client the fetcher needs.
type Registry interface {
	ListRuns(ctx context.Context, status string, perPage int) ([]registry.RunSummary, error)
	ListArtifacts(ctx context.Context, runID string) ([]registry.Artifact, error)
	Download(ctx context.Context, artifact registry.Artifact) ([]byte, error)
}

// PlanUpdater lets the fetcher reflect run outcomes back onto the batch plan.
type PlanUpdater interface {
	ApplyRunOutcome(runID string, succeeded bool) error
}

// Mirror receives a copy of each staged run for off-box storage.
type Mirror interface {
	PutRunRecords(ctx context.Context, runID string, records []models.Record) error
}

// Fetcher ingests completed-run artifacts into staging exactly once per run.
type Fetcher struct {
	store   *state.Store
	staging *staging.Store
	tracker *tracker.Tracker
	reg     Registry
	plan    PlanUpdater
	mirror  Mirror
	faults  *faultlog.Log
	metrics *metrics.Metrics
}

// New creates a Fetcher. plan, mirror, faults, and metrics may be nil.
func New(store *state.Store, stg *staging.Store, tr *tracker.Tracker, reg Registry,
	plan PlanUpdater, mirror Mirror, faults *faultlog.Log, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		store: store, staging: stg, tracker: tr, reg: reg,
		plan: plan, mirror: mirror, faults: faults, metrics: m,
	}
}

// Result summarizes one poll cycle.
type Result struct {
	RunsProcessed  int
	RecordsStaged  int
	RunsSkipped    int
	RunsFailed     int
	RunsInProgress int
}

// PollAndFetch performs one poll cycle. A run whose artifacts fail to
// download or parse is logged, recorded in the fault log, and left
// unprocessed so the next cycle retries it; it never blocks other runs.
func (f *Fetcher) PollAndFetch(ctx context.Context) (Result, error) {
	var result Result

	processed, err := f.store.LoadProcessed()
	if err != nil {
		return result, err
	}

	runs, err := f.reg.ListRuns(ctx, "completed", 50)
	if err != nil {
		return result, fmt.Errorf("poll registry: %w", err)
	}

	for _, run := range runs {
		if ctx.Err() != nil {
			break
		}
		runID := run.RunID()

		if processed.Contains(runID) {
			result.RunsSkipped++
			continue
		}
		if !run.Completed() {
			result.RunsInProgress++
			continue
		}

		records, err := f.fetchRun(ctx, run)
		if err != nil {
			slog.Warn("run fetch failed, will retry next cycle", "run_id", runID, "error", err)
			if logErr := f.faults.Record(faultlog.KindFetch, runID, err.Error()); logErr != nil {
				slog.Warn("fault log write failed", "error", logErr)
			}
			f.metrics.IncFetchFailure(errorLabel(err))
			result.RunsFailed++
			continue
		}

		if err := f.staging.WriteRun(runID, records); err != nil {
			return result, err
		}

		if f.mirror != nil {
			if err := f.mirror.PutRunRecords(ctx, runID, records); err != nil {
				// The mirror is best-effort; the local staging copy is canonical.
				slog.Warn("staging mirror failed", "run_id", runID, "error", err)
			}
		}

		if err := f.commitRun(run); err != nil {
			return result, err
		}

		// Commit point: from here the run is never revisited.
		processed.Add(runID)
		if err := f.store.SaveProcessed(processed); err != nil {
			return result, err
		}

		f.metrics.IncRunFetched()
		f.metrics.AddRecordsStaged(len(records))
		result.RunsProcessed++
		result.RecordsStaged += len(records)
		slog.Info("run staged", "run_id", runID, "records", len(records), "conclusion", run.Conclusion)
	}

	return result, nil
}

func (f *Fetcher) fetchRun(ctx context.Context, run registry.RunSummary) ([]models.Record, error) {
	runID := run.RunID()
	artifacts, err := f.reg.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	var records []models.Record

	for _, artifact := range artifacts {
		if artifact.Expired {
			slog.Debug("skipping expired artifact", "run_id", runID, "artifact", artifact.Name)
			continue
		}

		data, err := f.reg.Download(ctx, artifact)
		if err != nil {
			return nil, err
		}

		extracted, skippedFiles, err := extractArchive(data, runID, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", artifact.Name, err)
		}
		if skippedFiles > 0 {
			slog.Debug("skipped unparsable files in artifact",
				"run_id", runID, "artifact", artifact.Name, "files", skippedFiles)
		}
		records = append(records, extracted...)
	}

	return records, nil
}

// commitRun reflects the run's terminal status into the tracker and plan.
// A failed run's partial output is still staged; the failure shows up on the
// batch so retry-failed can re-dispatch it.
func (f *Fetcher) commitRun(run registry.RunSummary) error {
	runID := run.RunID()

	if f.tracker.Knows(runID) {
		if run.Succeeded() {
			if err := f.tracker.MarkCompleted(runID); err != nil {
				return err
			}
		} else {
			if err := f.tracker.MarkFailed(runID, "concluded "+run.Conclusion); err != nil {
				return err
			}
		}
		if err := f.tracker.MarkProcessed(runID); err != nil {
			return err
		}
	}

	if f.plan != nil {
		if err := f.plan.ApplyRunOutcome(runID, run.Succeeded()); err != nil {
			return err
		}
	}
	return nil
}

func errorLabel(err error) string {
	if registry.IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
