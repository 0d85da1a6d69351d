package state

// ProcessedRuns is the set of run IDs whose artifacts have already been
// staged. It is the sole gate preventing a run from being re-downloaded and
// re-merged. Append-only during normal operation; insertion order is kept so
// the persisted list is stable across saves.
type ProcessedRuns struct {
	ids  []string
	seen map[string]struct{}
}

func newProcessedRuns(ids []string) *ProcessedRuns {
	p := &ProcessedRuns{seen: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		p.Add(id)
	}
	return p
}

// NewProcessedRuns returns an empty registry.
func NewProcessedRuns() *ProcessedRuns {
	return newProcessedRuns(nil)
}

// Contains reports whether the run has already been staged.
func (p *ProcessedRuns) Contains(runID string) bool {
	_, ok := p.seen[runID]
	return ok
}

// Add records a run as staged. Adding an existing ID is a no-op.
func (p *ProcessedRuns) Add(runID string) {
	if runID == "" {
		return
	}
	if _, ok := p.seen[runID]; ok {
		return
	}
	p.seen[runID] = struct{}{}
	p.ids = append(p.ids, runID)
}

// IDs returns the run IDs in insertion order.
func (p *ProcessedRuns) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

// Len returns the number of processed runs.
func (p *ProcessedRuns) Len() int {
	return len(p.ids)
}
