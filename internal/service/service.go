// Package service runs the continuous harvest loop: dispatch retries, fetch,
// then consolidate, once per poll interval, until the context is cancelled.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/internal/consolidator"
	"github.com/mostafazog/mro-harvest/internal/fetcher"
	"github.com/mostafazog/mro-harvest/internal/metrics"
	"github.com/mostafazog/mro-harvest/internal/planner"
	"github.com/mostafazog/mro-harvest/internal/state"
)

// Dispatcher re-dispatches plan batches at the start of each cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, retryFailed bool) (planner.DispatchResult, error)
}

// Poller ingests completed runs from the registry.
type Poller interface {
	PollAndFetch(ctx context.Context) (fetcher.Result, error)
}

// Merger rebuilds the canonical collection from staging.
type Merger interface {
	Consolidate(ctx context.Context) (consolidator.Stats, error)
}

// Service owns the poll loop and the optional metrics listener.
type Service struct {
	config      config.Service
	store       *state.Store
	dispatcher  Dispatcher
	poller      Poller
	merger      Merger
	metrics     *metrics.Metrics
	retryFailed bool
}

// New creates a Service. dispatcher and metrics may be nil.
func New(cfg config.Service, store *state.Store, dispatcher Dispatcher, poller Poller, merger Merger, m *metrics.Metrics, retryFailed bool) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Service{
		config:      cfg,
		store:       store,
		dispatcher:  dispatcher,
		poller:      poller,
		merger:      merger,
		metrics:     m,
		retryFailed: retryFailed,
	}
}

// Run executes cycles until ctx is cancelled. The in-flight cycle finishes
// before Run returns, so a SIGINT never leaves staging half-committed.
// Transient cycle failures are logged and retried next interval; invalid
// configuration and state corruption stop the loop.
func (s *Service) Run(ctx context.Context) error {
	release, err := s.store.AcquireLock()
	if err != nil {
		return err
	}
	defer release()

	stopMetrics := s.serveMetrics()
	defer stopMetrics()

	slog.Info("service started", "poll_interval", s.config.PollInterval, "retry_failed", s.retryFailed)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.cycle(ctx); err != nil {
			if fatal(err) {
				return err
			}
			slog.Warn("cycle failed, retrying next interval", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("service stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) error {
	if s.dispatcher != nil {
		dispatched, err := s.dispatcher.Dispatch(ctx, s.retryFailed)
		if err != nil {
			return err
		}
		if dispatched.Dispatched > 0 || dispatched.Requeued > 0 {
			slog.Info("dispatch pass",
				"dispatched", dispatched.Dispatched,
				"requeued", dispatched.Requeued,
				"pending", dispatched.Pending)
		}
	}

	fetched, err := s.poller.PollAndFetch(ctx)
	if err != nil {
		return err
	}

	if fetched.RunsProcessed > 0 {
		if _, err := s.merger.Consolidate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics starts the Prometheus listener when configured. The returned
// stop function blocks until the listener has shut down.
func (s *Service) serveMetrics() func() {
	if s.config.MetricsListen == "" || s.metrics == nil {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Addr: s.config.MetricsListen, Handler: mux}

	go func() {
		slog.Info("metrics listener started", "addr", s.config.MetricsListen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics listener shutdown", "error", err)
		}
	}
}

func fatal(err error) bool {
	return errors.Is(err, config.ErrInvalid) || errors.Is(err, state.ErrCorrupt)
}
