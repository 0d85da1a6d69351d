package models

import "time"

// BatchStatus tracks a batch through the dispatch lifecycle.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchDispatched BatchStatus = "dispatched"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is a contiguous slice [Start, End) of the product-ID space assigned
// to one dispatch. Batches are never deleted; only Status and RunID change.
type Batch struct {
	Index      int         `json:"index"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Status     BatchStatus `json:"status"`
	WorkerSlot int         `json:"worker_slot"`
	RunID      string      `json:"run_id,omitempty"`
}

// Size returns the number of product IDs covered by the batch.
func (b Batch) Size() int {
	return b.End - b.Start
}

// RunStatus tracks one external dispatch of compute.
type RunStatus string

const (
	RunDispatched RunStatus = "dispatched"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run records one dispatched unit of work and whether its output artifacts
// have been ingested. Processed flips to true exactly once, after staging
// succeeds; the run is never revisited afterward.
type Run struct {
	ID           string    `json:"id"`
	BatchIndexes []int     `json:"batch_indexes"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Status       RunStatus `json:"status"`
	Processed    bool      `json:"processed"`
	FailReason   string    `json:"fail_reason,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (r Run) Terminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
