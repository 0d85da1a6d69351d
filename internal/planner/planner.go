// Package planner divides the product-ID space into batches and dispatches
// them to the job registry in waves bounded by the worker limit.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/internal/faultlog"
	"github.com/mostafazog/mro-harvest/internal/metrics"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/internal/tracker"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Registry is the subset of the job-registry client the planner needs.
type Registry interface {
	SubmitRun(ctx context.Context, inputs registry.DispatchInputs) (string, error)
	ListRuns(ctx context.Context, status string, perPage int) ([]registry.RunSummary, error)
}

// Planner owns the batch plan and its dispatch lifecycle.
type Planner struct {
	config  config.Plan
	store   *state.Store
	tracker *tracker.Tracker
	reg     Registry
	faults  *faultlog.Log
	metrics *metrics.Metrics
}

// New creates a Planner. faults and metrics may be nil.
func New(cfg config.Plan, store *state.Store, tr *tracker.Tracker, reg Registry, faults *faultlog.Log, m *metrics.Metrics) *Planner {
	return &Planner{config: cfg, store: store, tracker: tr, reg: reg, faults: faults, metrics: m}
}

// BuildPlan partitions [0, totalItems) into batchSize-sized batches. The
// final batch is shorter when totalItems is not evenly divisible.
func BuildPlan(totalItems, batchSize int) ([]models.Batch, error) {
	if totalItems <= 0 {
		return nil, fmt.Errorf("%w: total items must be positive, got %d", config.ErrInvalid, totalItems)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", config.ErrInvalid, batchSize)
	}

	count := (totalItems + batchSize - 1) / batchSize
	batches := make([]models.Batch, 0, count)
	for i := 0; i < count; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > totalItems {
			end = totalItems
		}
		batches = append(batches, models.Batch{
			Index:      i,
			Start:      start,
			End:        end,
			Status:     models.BatchPending,
			WorkerSlot: -1,
		})
	}
	return batches, nil
}

// Plan builds and persists a fresh batch plan. An existing plan with
// unfinished batches is only replaced when force is set.
func (p *Planner) Plan(force bool) error {
	if err := (config.Config{Plan: p.config}).ValidatePlan(); err != nil {
		return err
	}

	existing, err := p.store.LoadPlan()
	if err != nil {
		return err
	}
	if len(existing) > 0 && !force {
		for _, b := range existing {
			if b.Status != models.BatchCompleted {
				return fmt.Errorf("existing plan has unfinished batches; use --force to replace it")
			}
		}
	}

	plan, err := BuildPlan(p.config.TotalItems, p.config.BatchSize)
	if err != nil {
		return err
	}
	if err := p.store.SavePlan(plan); err != nil {
		return err
	}
	slog.Info("plan created", "total_items", p.config.TotalItems,
		"batch_size", p.config.BatchSize, "batches", len(plan))
	return nil
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Dispatched int
	Failed     int
	Requeued   int
	Pending    int
	InFlight   int
}

// Dispatch fills free worker slots with pending batches. A submission
// failure leaves its batch pending and moves on to the next one; only the
// per-batch error is recorded. With retryFailed set, failed batches are
// first re-queued as pending (completed ones are never touched).
func (p *Planner) Dispatch(ctx context.Context, retryFailed bool) (DispatchResult, error) {
	var result DispatchResult

	plan, err := p.store.LoadPlan()
	if err != nil {
		return result, err
	}
	if len(plan) == 0 {
		return result, fmt.Errorf("no batch plan found; run plan first")
	}

	if retryFailed {
		for i := range plan {
			if plan[i].Status == models.BatchFailed {
				plan[i].Status = models.BatchPending
				plan[i].RunID = ""
				plan[i].WorkerSlot = -1
				result.Requeued++
			}
		}
		if result.Requeued > 0 {
			if err := p.store.SavePlan(plan); err != nil {
				return result, err
			}
			slog.Info("re-queued failed batches", "count", result.Requeued)
		}
	}

	inFlight := countStatus(plan, models.BatchDispatched)
	free := p.config.MaxWorkers - inFlight

	for i := range plan {
		if free <= 0 {
			break
		}
		if plan[i].Status != models.BatchPending {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		slot := nextFreeSlot(plan, p.config.MaxWorkers)
		plan[i].Status = models.BatchDispatched
		plan[i].WorkerSlot = slot
		// Persist the transition before submitting: a crash in between is
		// recovered by Recover re-queuing batches with no registry run.
		if err := p.store.SavePlan(plan); err != nil {
			return result, err
		}

		runID, err := p.reg.SubmitRun(ctx, registry.DispatchInputs{
			TotalProducts: plan[i].Size(),
			BatchSize:     p.config.BatchSize,
			Workers:       1,
			StartIndex:    plan[i].Start,
		})
		if err != nil {
			plan[i].Status = models.BatchPending
			plan[i].WorkerSlot = -1
			if saveErr := p.store.SavePlan(plan); saveErr != nil {
				return result, saveErr
			}
			slog.Warn("batch submission failed", "batch", plan[i].Index, "error", err)
			if logErr := p.faults.Record(faultlog.KindDispatch, batchSubject(plan[i].Index), err.Error()); logErr != nil {
				slog.Warn("fault log write failed", "error", logErr)
			}
			p.metrics.IncDispatchFailure()
			result.Failed++
			continue
		}

		plan[i].RunID = runID
		if err := p.store.SavePlan(plan); err != nil {
			return result, err
		}
		if err := p.tracker.RecordDispatch(runID, []int{plan[i].Index}, time.Now().UTC()); err != nil {
			return result, err
		}
		p.metrics.IncBatchDispatched()
		slog.Info("batch dispatched", "batch", plan[i].Index,
			"range", fmt.Sprintf("[%d,%d)", plan[i].Start, plan[i].End),
			"run_id", runID, "slot", slot)
		result.Dispatched++
		free--
	}

	result.Pending = countStatus(plan, models.BatchPending)
	result.InFlight = countStatus(plan, models.BatchDispatched)
	return result, nil
}

// Recover re-queues any batch marked dispatched whose run is absent from the
// job registry. Run after a restart so a crash between "mark dispatched" and
// "actually submit" never silently loses a batch.
func (p *Planner) Recover(ctx context.Context) (int, error) {
	plan, err := p.store.LoadPlan()
	if err != nil {
		return 0, err
	}
	if len(plan) == 0 {
		return 0, nil
	}

	hasDispatched := false
	for _, b := range plan {
		if b.Status == models.BatchDispatched {
			hasDispatched = true
			break
		}
	}
	if !hasDispatched {
		return 0, nil
	}

	runs, err := p.reg.ListRuns(ctx, "", 100)
	if err != nil {
		return 0, fmt.Errorf("recovery registry check: %w", err)
	}
	known := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		known[run.RunID()] = struct{}{}
	}

	requeued := 0
	for i := range plan {
		if plan[i].Status != models.BatchDispatched {
			continue
		}
		if _, ok := known[plan[i].RunID]; ok {
			continue
		}
		// Covers empty run IDs (crash before submit) and local placeholder
		// IDs whose dispatch never materialized as a registry run.
		plan[i].Status = models.BatchPending
		plan[i].RunID = ""
		plan[i].WorkerSlot = -1
		requeued++
	}

	if requeued > 0 {
		if err := p.store.SavePlan(plan); err != nil {
			return 0, err
		}
		slog.Info("recovered orphaned batches", "requeued", requeued)
	}
	return requeued, nil
}

// ApplyRunOutcome transitions all batches belonging to a run once the run
// reaches a terminal status.
func (p *Planner) ApplyRunOutcome(runID string, succeeded bool) error {
	plan, err := p.store.LoadPlan()
	if err != nil {
		return err
	}

	status := models.BatchCompleted
	if !succeeded {
		status = models.BatchFailed
	}

	changed := false
	for i := range plan {
		if plan[i].RunID != runID || plan[i].Status != models.BatchDispatched {
			continue
		}
		plan[i].Status = status
		changed = true
	}
	if !changed {
		return nil
	}
	return p.store.SavePlan(plan)
}

func countStatus(plan []models.Batch, status models.BatchStatus) int {
	n := 0
	for _, b := range plan {
		if b.Status == status {
			n++
		}
	}
	return n
}

func nextFreeSlot(plan []models.Batch, maxWorkers int) int {
	used := make(map[int]struct{})
	for _, b := range plan {
		if b.Status == models.BatchDispatched && b.WorkerSlot >= 0 {
			used[b.WorkerSlot] = struct{}{}
		}
	}
	for slot := 0; slot < maxWorkers; slot++ {
		if _, ok := used[slot]; !ok {
			return slot
		}
	}
	return len(used)
}

func batchSubject(index int) string {
	return "batch-" + strconv.Itoa(index)
}
