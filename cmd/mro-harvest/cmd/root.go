package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mostafazog/mro-harvest/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "mro-harvest",
	Short: "mro-harvest: distributed catalog scrape orchestration",
	Long: `mro-harvest coordinates a distributed catalog scrape: it splits the item
range into batches, dispatches them to registry workers, ingests the result
artifacts, and consolidates everything into one deduplicated collection.

Commands:
  plan         Build the batch plan
  dispatch     Dispatch pending batches to registry workers
  fetch        Ingest completed run artifacts into staging
  consolidate  Merge staged runs into the canonical output files
  run          Continuous fetch + consolidate loop
  worker       Process one batch locally without remote workers
  status       Show plan, run, and output progress`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/mro-harvest")
	}

	// Environment variable overrides
	// MROHARVEST_REGISTRY_REPO -> registry.repo
	viper.SetEnvPrefix("MROHARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("registry.repo", "MROHARVEST_REGISTRY_REPO")
	viper.BindEnv("registry.workflow_file", "MROHARVEST_REGISTRY_WORKFLOW_FILE")
	viper.BindEnv("registry.ref", "MROHARVEST_REGISTRY_REF")
	viper.BindEnv("registry.token", "MROHARVEST_REGISTRY_TOKEN")
	viper.BindEnv("plan.total_items", "MROHARVEST_PLAN_TOTAL_ITEMS")
	viper.BindEnv("plan.batch_size", "MROHARVEST_PLAN_BATCH_SIZE")
	viper.BindEnv("plan.max_workers", "MROHARVEST_PLAN_MAX_WORKERS")
	viper.BindEnv("paths.state_dir", "MROHARVEST_PATHS_STATE_DIR")
	viper.BindEnv("paths.staging_dir", "MROHARVEST_PATHS_STAGING_DIR")
	viper.BindEnv("paths.output_dir", "MROHARVEST_PATHS_OUTPUT_DIR")
	viper.BindEnv("storage.endpoint", "MROHARVEST_STORAGE_ENDPOINT")
	viper.BindEnv("storage.bucket", "MROHARVEST_STORAGE_BUCKET")
	viper.BindEnv("storage.access_key_id", "MROHARVEST_STORAGE_ACCESS_KEY_ID")
	viper.BindEnv("storage.secret_access_key", "MROHARVEST_STORAGE_SECRET_ACCESS_KEY")
	viper.BindEnv("search.addresses", "MROHARVEST_SEARCH_ADDRESSES")
	viper.BindEnv("search.index", "MROHARVEST_SEARCH_INDEX")
	viper.BindEnv("worker.url_template", "MROHARVEST_WORKER_URL_TEMPLATE")
	viper.BindEnv("service.poll_interval", "MROHARVEST_SERVICE_POLL_INTERVAL")
	viper.BindEnv("service.metrics_listen", "MROHARVEST_SERVICE_METRICS_LISTEN")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("MROHARVEST_SEARCH_ADDRESSES"); addrs != "" {
		cfg.Search.Addresses = strings.Split(addrs, ",")
	}

	// The registry token usually lives in the ambient GITHUB_TOKEN
	if cfg.Registry.Token == "" {
		cfg.Registry.Token = os.Getenv("GITHUB_TOKEN")
	}
}
