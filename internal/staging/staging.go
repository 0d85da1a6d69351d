// Package staging stores extracted per-run record sets on disk between
// fetching and consolidation. One file per run; re-staging a run overwrites
// its file, so fetching the same run twice never double-counts.
package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

const runFilePrefix = "run_"

// Store manages staged record files under a single directory.
type Store struct {
	dir string
}

// New creates a staging store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Store) Dir() string {
	return s.dir
}

// WriteRun stages the records extracted from one run, replacing any previous
// staging file for the same run.
func (s *Store) WriteRun(runID string, records []models.Record) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal staged records: %w", err)
	}
	if err := state.WriteFileAtomic(s.runPath(runID), data); err != nil {
		return fmt.Errorf("stage run %s: %w", runID, err)
	}
	return nil
}

// ReadRun returns the staged records for one run.
func (s *Store) ReadRun(runID string) ([]models.Record, error) {
	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		return nil, fmt.Errorf("read staged run %s: %w", runID, err)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse staged run %s: %w", runID, err)
	}
	return records, nil
}

// ListRunIDs returns the IDs of all staged runs in sorted order.
func (s *Store) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list staging directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, runFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, runFilePrefix), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.dir, runFilePrefix+sanitize(runID)+".json")
}

// sanitize keeps run IDs filesystem-safe. Registry IDs are numeric and local
// IDs are uuid-based, but artifact names are taken on trust.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
