// Package tracker keeps the ledger of dispatched runs. Every mutation is
// flushed to the state store before returning, so an external observer
// polling the store never sees an in-memory-only state.
package tracker

import (
	"fmt"
	"time"

	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Tracker records per-run identity, submission time, and outcome.
type Tracker struct {
	store *state.Store
	runs  []models.Run
	index map[string]int
}

// Load restores the run ledger from the state store.
func Load(store *state.Store) (*Tracker, error) {
	runs, err := store.LoadRuns()
	if err != nil {
		return nil, err
	}
	t := &Tracker{store: store, runs: runs, index: make(map[string]int, len(runs))}
	for i, run := range runs {
		t.index[run.ID] = i
	}
	return t, nil
}

// RecordDispatch adds a newly dispatched run to the ledger.
func (t *Tracker) RecordDispatch(runID string, batchIndexes []int, at time.Time) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	if _, exists := t.index[runID]; exists {
		return fmt.Errorf("run %s already recorded", runID)
	}
	t.runs = append(t.runs, models.Run{
		ID:           runID,
		BatchIndexes: batchIndexes,
		DispatchedAt: at,
		Status:       models.RunDispatched,
	})
	t.index[runID] = len(t.runs) - 1
	return t.flush()
}

// MarkCompleted transitions a run to completed. Transitions are monotonic:
// a run that already reached a terminal status is left untouched.
func (t *Tracker) MarkCompleted(runID string) error {
	return t.transition(runID, models.RunCompleted, "")
}

// MarkFailed transitions a run to failed with a reason.
func (t *Tracker) MarkFailed(runID, reason string) error {
	return t.transition(runID, models.RunFailed, reason)
}

// MarkProcessed flips the run's processed flag after its artifacts have been
// staged. The flag never flips back.
func (t *Tracker) MarkProcessed(runID string) error {
	i, ok := t.index[runID]
	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	if t.runs[i].Processed {
		return nil
	}
	t.runs[i].Processed = true
	return t.flush()
}

// PendingRuns returns runs still awaiting a terminal status, in dispatch
// order. These are the runs worth polling the registry for.
func (t *Tracker) PendingRuns() []models.Run {
	var pending []models.Run
	for _, run := range t.runs {
		if !run.Terminal() {
			pending = append(pending, run)
		}
	}
	return pending
}

// Runs returns a copy of the full ledger.
func (t *Tracker) Runs() []models.Run {
	out := make([]models.Run, len(t.runs))
	copy(out, t.runs)
	return out
}

// Run looks up one run by ID.
func (t *Tracker) Run(runID string) (models.Run, bool) {
	i, ok := t.index[runID]
	if !ok {
		return models.Run{}, false
	}
	return t.runs[i], true
}

// Knows reports whether the run is in the ledger.
func (t *Tracker) Knows(runID string) bool {
	_, ok := t.index[runID]
	return ok
}

func (t *Tracker) transition(runID string, to models.RunStatus, reason string) error {
	i, ok := t.index[runID]
	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	if t.runs[i].Terminal() {
		return nil
	}
	t.runs[i].Status = to
	t.runs[i].FailReason = reason
	return t.flush()
}

func (t *Tracker) flush() error {
	if err := t.store.SaveRuns(t.runs); err != nil {
		return fmt.Errorf("flush run ledger: %w", err)
	}
	return nil
}
