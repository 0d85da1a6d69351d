// Package config holds all application configuration. Components receive the
// sections they need at construction; there are no ambient globals.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid marks configuration that can never succeed. Fatal, no retry.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Registry Registry `mapstructure:"registry"`
	Plan     Plan     `mapstructure:"plan"`
	Paths    Paths    `mapstructure:"paths"`
	Storage  Storage  `mapstructure:"storage"`
	Search   Search   `mapstructure:"search"`
	Worker   Worker   `mapstructure:"worker"`
	Service  Service  `mapstructure:"service"`
}

// Registry holds job-registry (GitHub Actions) access configuration.
type Registry struct {
	BaseURL      string        `mapstructure:"base_url"`
	Repo         string        `mapstructure:"repo"`
	WorkflowFile string        `mapstructure:"workflow_file"`
	Ref          string        `mapstructure:"ref"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Plan holds batch-planning parameters.
type Plan struct {
	TotalItems int `mapstructure:"total_items"`
	BatchSize  int `mapstructure:"batch_size"`
	MaxWorkers int `mapstructure:"max_workers"`
}

// Paths holds the on-disk layout owned by the pipeline.
type Paths struct {
	StateDir   string `mapstructure:"state_dir"`
	StagingDir string `mapstructure:"staging_dir"`
	OutputDir  string `mapstructure:"output_dir"`
}

// Storage holds the optional S3/MinIO mirror configuration. An empty
// endpoint disables mirroring.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Search holds the optional Elasticsearch export configuration.
type Search struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Worker holds local worker mode configuration.
type Worker struct {
	URLTemplate string        `mapstructure:"url_template"`
	Delay       time.Duration `mapstructure:"delay"`
	Parallelism int           `mapstructure:"parallelism"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// Service holds control-loop configuration.
type Service struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MetricsListen string        `mapstructure:"metrics_listen"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Registry: Registry{
			BaseURL:      "https://api.github.com",
			WorkflowFile: "distributed-scrape.yml",
			Ref:          "main",
			Timeout:      60 * time.Second,
		},
		Plan: Plan{
			BatchSize:  100,
			MaxWorkers: 256,
		},
		Paths: Paths{
			StateDir:   "state",
			StagingDir: "staging",
			OutputDir:  "consolidated",
		},
		Search: Search{
			Addresses: []string{"http://localhost:9200"},
			Index:     "harvest-items",
		},
		Worker: Worker{
			Delay:       500 * time.Millisecond,
			Parallelism: 5,
			Timeout:     30 * time.Second,
			UserAgent:   "mro-harvest/1.0",
		},
		Service: Service{
			PollInterval: 5 * time.Minute,
		},
	}
}

// ValidatePlan checks the planning parameters.
func (c Config) ValidatePlan() error {
	if c.Plan.TotalItems <= 0 {
		return fmt.Errorf("%w: total items must be positive, got %d", ErrInvalid, c.Plan.TotalItems)
	}
	if c.Plan.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalid, c.Plan.BatchSize)
	}
	if c.Plan.MaxWorkers <= 0 {
		return fmt.Errorf("%w: max workers must be positive, got %d", ErrInvalid, c.Plan.MaxWorkers)
	}
	return nil
}

// ValidateDispatch checks the parameters dispatch needs. Unlike
// ValidatePlan it does not require total_items, since dispatch works off
// the persisted plan.
func (c Config) ValidateDispatch() error {
	if c.Plan.MaxWorkers <= 0 {
		return fmt.Errorf("%w: max workers must be positive, got %d", ErrInvalid, c.Plan.MaxWorkers)
	}
	return nil
}

// ValidateRegistry checks that registry access is configured.
func (c Config) ValidateRegistry() error {
	if c.Registry.Repo == "" {
		return fmt.Errorf("%w: registry repo is required", ErrInvalid)
	}
	if c.Registry.Token == "" {
		return fmt.Errorf("%w: registry token is required (set MROHARVEST_REGISTRY_TOKEN or GITHUB_TOKEN)", ErrInvalid)
	}
	return nil
}
