// Package state persists the harvest plan, run ledger, and processed-run
// registry as plain JSON files so external monitoring can read them at any
// time. All writes go through a temp-file-then-rename so a reader never
// observes a half-written file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

// ErrCorrupt indicates a state file exists but cannot be parsed. This is
// fatal: silently resetting would trigger mass re-processing against the
// external registry, so the operator has to intervene.
var ErrCorrupt = errors.New("state corrupt")

// ErrLocked indicates another instance holds the state directory lock.
var ErrLocked = errors.New("state directory locked by another instance")

const (
	planFile      = "batch_plan.json"
	runsFile      = "runs.json"
	processedFile = "processed_runs.json"
	summaryFile   = "summary.json"
	lockFile      = "mro-harvest.lock"
)

// Summary holds the consolidation counters surfaced by the status command.
type Summary struct {
	ItemCount         int       `json:"item_count"`
	DuplicatesRemoved int       `json:"duplicates_removed"`
	ConsolidatedAt    time.Time `json:"consolidated_at"`
}

// Store reads and writes harvest state under a single directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

// LoadPlan returns the persisted batch plan, or nil if none exists yet.
func (s *Store) LoadPlan() ([]models.Batch, error) {
	var plan []models.Batch
	if err := s.readJSON(planFile, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// SavePlan persists the batch plan atomically.
func (s *Store) SavePlan(plan []models.Batch) error {
	return s.writeJSON(planFile, plan)
}

// LoadRuns returns the persisted run ledger, or nil if none exists yet.
func (s *Store) LoadRuns() ([]models.Run, error) {
	var runs []models.Run
	if err := s.readJSON(runsFile, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// SaveRuns persists the run ledger atomically.
func (s *Store) SaveRuns(runs []models.Run) error {
	return s.writeJSON(runsFile, runs)
}

// LoadProcessed returns the processed-run registry. A missing file yields an
// empty registry (first run).
func (s *Store) LoadProcessed() (*ProcessedRuns, error) {
	var ids []string
	if err := s.readJSON(processedFile, &ids); err != nil {
		return nil, err
	}
	return newProcessedRuns(ids), nil
}

// SaveProcessed persists the processed-run registry atomically.
func (s *Store) SaveProcessed(p *ProcessedRuns) error {
	return s.writeJSON(processedFile, p.IDs())
}

// LoadSummary returns the last consolidation summary, or a zero Summary if
// consolidation has never run.
func (s *Store) LoadSummary() (Summary, error) {
	var sum Summary
	if err := s.readJSON(summaryFile, &sum); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// SaveSummary persists the consolidation summary atomically.
func (s *Store) SaveSummary(sum Summary) error {
	return s.writeJSON(summaryFile, sum)
}

// AcquireLock guards against a second accidentally started instance. It is
// advisory only; the data files stay safe regardless via atomic renames.
// The returned release function removes the lock.
func (s *Store) AcquireLock() (func(), error) {
	path := filepath.Join(s.dir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(path) }, nil
}

func (s *Store) readJSON(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return WriteFileAtomic(filepath.Join(s.dir, name), data)
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so concurrent readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
