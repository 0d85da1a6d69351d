package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mostafazog/mro-harvest/internal/consolidator"
	"github.com/mostafazog/mro-harvest/internal/faultlog"
	"github.com/mostafazog/mro-harvest/internal/fetcher"
	"github.com/mostafazog/mro-harvest/internal/metrics"
	"github.com/mostafazog/mro-harvest/internal/planner"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/staging"
	"github.com/mostafazog/mro-harvest/internal/state"
	"github.com/mostafazog/mro-harvest/internal/storage"
	"github.com/mostafazog/mro-harvest/internal/tracker"
)

// pipeline bundles the wired components the commands share.
type pipeline struct {
	store    *state.Store
	staging  *staging.Store
	tracker  *tracker.Tracker
	registry *registry.Client
	planner  *planner.Planner
	fetcher  *fetcher.Fetcher
	merger   *consolidator.Consolidator
	faults   *faultlog.Log
	metrics  *metrics.Metrics
}

// buildPipeline wires every component from the loaded configuration.
// needRegistry skips registry validation for commands that work offline.
func buildPipeline(ctx context.Context, needRegistry bool) (*pipeline, error) {
	store, err := state.New(cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}
	stg, err := staging.New(cfg.Paths.StagingDir)
	if err != nil {
		return nil, err
	}
	tr, err := tracker.Load(store)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		store:   store,
		staging: stg,
		tracker: tr,
		faults:  faultlog.Open(filepath.Join(cfg.Paths.StateDir, "faults.jsonl")),
		metrics: metrics.New(),
	}

	if needRegistry {
		if err := cfg.ValidateRegistry(); err != nil {
			return nil, err
		}
		p.registry, err = registry.New(registry.Config{
			BaseURL:      cfg.Registry.BaseURL,
			Repo:         cfg.Registry.Repo,
			WorkflowFile: cfg.Registry.WorkflowFile,
			Ref:          cfg.Registry.Ref,
			Token:        cfg.Registry.Token,
			Timeout:      cfg.Registry.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	// Plan building works offline; dispatch needs the registry wired.
	var reg planner.Registry
	if p.registry != nil {
		reg = p.registry
	}
	p.planner = planner.New(cfg.Plan, store, tr, reg, p.faults, p.metrics)

	mirror, err := buildMirror(ctx)
	if err != nil {
		return nil, err
	}

	// A nil *storage.Client must stay a nil interface downstream.
	var runMirror fetcher.Mirror
	var canonicalMirror consolidator.Mirror
	if mirror != nil {
		runMirror = mirror
		canonicalMirror = mirror
	}

	if p.registry != nil {
		p.fetcher = fetcher.New(store, stg, tr, p.registry, p.planner, runMirror, p.faults, p.metrics)
	}
	p.merger = consolidator.New(stg, store, cfg.Paths.OutputDir, canonicalMirror, p.metrics)

	return p, nil
}

// buildMirror creates the S3 mirror when storage is configured; a missing
// endpoint means mirroring is off.
func buildMirror(ctx context.Context) (*storage.Client, error) {
	if cfg.Storage.Endpoint == "" {
		return nil, nil
	}
	client, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("storage mirror: %w", err)
	}
	return client, nil
}
