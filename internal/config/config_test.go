package config

import (
	"errors"
	"testing"
)

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{name: "valid", plan: Plan{TotalItems: 250, BatchSize: 100, MaxWorkers: 2}, wantErr: false},
		{name: "zero total", plan: Plan{TotalItems: 0, BatchSize: 100, MaxWorkers: 2}, wantErr: true},
		{name: "negative total", plan: Plan{TotalItems: -5, BatchSize: 100, MaxWorkers: 2}, wantErr: true},
		{name: "zero batch size", plan: Plan{TotalItems: 250, BatchSize: 0, MaxWorkers: 2}, wantErr: true},
		{name: "zero workers", plan: Plan{TotalItems: 250, BatchSize: 100, MaxWorkers: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Plan = tt.plan
			err := cfg.ValidatePlan()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("ValidatePlan() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateDispatch(t *testing.T) {
	cfg := Defaults()
	cfg.Plan = Plan{MaxWorkers: 2} // no total_items needed
	if err := cfg.ValidateDispatch(); err != nil {
		t.Errorf("ValidateDispatch() error = %v", err)
	}

	cfg.Plan.MaxWorkers = 0
	if err := cfg.ValidateDispatch(); !errors.Is(err, ErrInvalid) {
		t.Errorf("ValidateDispatch() error = %v, want ErrInvalid", err)
	}
}

func TestValidateRegistry(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ValidateRegistry(); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty registry config error = %v, want ErrInvalid", err)
	}

	cfg.Registry.Repo = "acme/mro-supply"
	cfg.Registry.Token = "tok"
	if err := cfg.ValidateRegistry(); err != nil {
		t.Errorf("ValidateRegistry() error = %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Plan.BatchSize != 100 {
		t.Errorf("default batch size = %d, want 100", cfg.Plan.BatchSize)
	}
	if cfg.Service.PollInterval.Minutes() != 5 {
		t.Errorf("default poll interval = %v, want 5m", cfg.Service.PollInterval)
	}
	if cfg.Registry.BaseURL == "" {
		t.Error("default registry base URL empty")
	}
}
