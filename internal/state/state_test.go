package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

func TestLoadMissingStateIsEmpty(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	plan, err := s.LoadPlan()
	if err != nil {
		t.Fatalf("LoadPlan() error = %v", err)
	}
	if plan != nil {
		t.Errorf("LoadPlan() = %v, want nil on first run", plan)
	}

	processed, err := s.LoadProcessed()
	if err != nil {
		t.Fatalf("LoadProcessed() error = %v", err)
	}
	if processed.Len() != 0 {
		t.Errorf("LoadProcessed().Len() = %d, want 0", processed.Len())
	}
}

func TestPlanRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	plan := []models.Batch{
		{Index: 0, Start: 0, End: 100, Status: models.BatchDispatched, RunID: "r1"},
		{Index: 1, Start: 100, End: 200, Status: models.BatchPending},
	}
	if err := s.SavePlan(plan); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}

	got, err := s.LoadPlan()
	if err != nil {
		t.Fatalf("LoadPlan() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadPlan() returned %d batches, want 2", len(got))
	}
	if got[0].RunID != "r1" || got[0].Status != models.BatchDispatched {
		t.Errorf("batch 0 = %+v, round trip lost data", got[0])
	}
}

func TestRunsRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	runs := []models.Run{
		{ID: "r1", BatchIndexes: []int{0, 1}, DispatchedAt: now, Status: models.RunCompleted, Processed: true},
	}
	if err := s.SaveRuns(runs); err != nil {
		t.Fatalf("SaveRuns() error = %v", err)
	}

	got, err := s.LoadRuns()
	if err != nil {
		t.Fatalf("LoadRuns() error = %v", err)
	}
	if len(got) != 1 || !got[0].Processed || got[0].Status != models.RunCompleted {
		t.Errorf("LoadRuns() = %+v, round trip lost data", got)
	}
}

func TestCorruptStateFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "processed_runs.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.LoadProcessed()
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadProcessed() error = %v, want ErrCorrupt", err)
	}
}

func TestProcessedRunsAppendOnlyAndUnique(t *testing.T) {
	p := NewProcessedRuns()
	p.Add("r1")
	p.Add("r2")
	p.Add("r1")

	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
	if !p.Contains("r1") || !p.Contains("r2") {
		t.Error("Contains() missing added IDs")
	}
	ids := p.IDs()
	if ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("IDs() = %v, want insertion order [r1 r2]", ids)
	}
}

func TestProcessedRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p := NewProcessedRuns()
	p.Add("r1")
	p.Add("r2")
	if err := s.SaveProcessed(p); err != nil {
		t.Fatalf("SaveProcessed() error = %v", err)
	}

	got, err := s.LoadProcessed()
	if err != nil {
		t.Fatalf("LoadProcessed() error = %v", err)
	}
	if !got.Contains("r1") || !got.Contains("r2") || got.Len() != 2 {
		t.Errorf("round trip lost registry entries: %v", got.IDs())
	}
}

func TestAcquireLockExcludesSecondInstance(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	release, err := s.AcquireLock()
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	if _, err := s.AcquireLock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second AcquireLock() error = %v, want ErrLocked", err)
	}

	release()
	release2, err := s.AcquireLock()
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	release2()
}

func TestWriteFileAtomicLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := WriteFileAtomic(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.json" {
		t.Errorf("directory contains %v, want only out.json", entries)
	}
}
