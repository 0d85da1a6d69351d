// Package metrics bundles Prometheus collectors for the harvest pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesDispatched prometheus.Counter
	DispatchFailures  prometheus.Counter
	RunsFetched       prometheus.Counter
	FetchFailures     *prometheus.CounterVec
	RecordsStaged     prometheus.Counter
	Consolidations    prometheus.Counter
	CanonicalItems    prometheus.Gauge
	DuplicatesRemoved prometheus.Gauge
}

// New constructs and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	batchesDispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_batches_dispatched_total",
		Help: "Total batches submitted to the job registry.",
	})
	dispatchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_dispatch_failures_total",
		Help: "Total batch submissions that failed.",
	})
	runsFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_runs_fetched_total",
		Help: "Total completed runs whose artifacts were staged.",
	})
	fetchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_fetch_failures_total",
		Help: "Total per-run fetch failures by type.",
	}, []string{"error_type"})
	recordsStaged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_records_staged_total",
		Help: "Total raw records extracted into staging.",
	})
	consolidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_consolidations_total",
		Help: "Total consolidation passes completed.",
	})
	canonicalItems := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_canonical_items",
		Help: "Unique items in the canonical collection after the last pass.",
	})
	duplicatesRemoved := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_duplicates_removed",
		Help: "Duplicate records removed in the last consolidation pass.",
	})

	registry.MustRegister(batchesDispatched, dispatchFailures, runsFetched,
		fetchFailures, recordsStaged, consolidations, canonicalItems, duplicatesRemoved)

	return &Metrics{
		Registry:          registry,
		BatchesDispatched: batchesDispatched,
		DispatchFailures:  dispatchFailures,
		RunsFetched:       runsFetched,
		FetchFailures:     fetchFailures,
		RecordsStaged:     recordsStaged,
		Consolidations:    consolidations,
		CanonicalItems:    canonicalItems,
		DuplicatesRemoved: duplicatesRemoved,
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncBatchDispatched increments the dispatched-batch counter.
func (m *Metrics) IncBatchDispatched() {
	if m == nil {
		return
	}
	m.BatchesDispatched.Inc()
}

// IncDispatchFailure increments the dispatch-failure counter.
func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	m.DispatchFailures.Inc()
}

// IncRunFetched increments the fetched-run counter.
func (m *Metrics) IncRunFetched() {
	if m == nil {
		return
	}
	m.RunsFetched.Inc()
}

// IncFetchFailure increments the fetch-failure counter for a type label.
func (m *Metrics) IncFetchFailure(errorType string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(errorType).Inc()
}

// AddRecordsStaged adds to the staged-record counter.
func (m *Metrics) AddRecordsStaged(n int) {
	if m == nil {
		return
	}
	m.RecordsStaged.Add(float64(n))
}

// ObserveConsolidation records the outcome of one consolidation pass.
func (m *Metrics) ObserveConsolidation(uniqueItems, duplicatesRemoved int) {
	if m == nil {
		return
	}
	m.Consolidations.Inc()
	m.CanonicalItems.Set(float64(uniqueItems))
	m.DuplicatesRemoved.Set(float64(duplicatesRemoved))
}
