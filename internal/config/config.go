// Package config provides configuration for the offer profiling pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "OFFERPROFILE_"

// Config holds the pipeline configuration.
type Config struct {
	// DataDir is the base directory for work files and the output database
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Input dataset object paths
	Input InputConfig `json:"input" yaml:"input"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Pipeline tuning
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// InputConfig names the three JSON-lines datasets inside storage.
type InputConfig struct {
	// Profile is the demographic dataset
	Profile string `json:"profile" yaml:"profile"`

	// Portfolio is the offer catalog
	Portfolio string `json:"portfolio" yaml:"portfolio"`

	// Transcript is the event log
	Transcript string `json:"transcript" yaml:"transcript"`
}

// OutputConfig controls where the profile database goes.
type OutputConfig struct {
	// Database is the local SQLite path
	Database string `json:"database" yaml:"database"`

	// Object is the storage path the database is uploaded to (s3 storage only)
	Object string `json:"object" yaml:"object"`
}

// PipelineConfig holds aggregator tuning.
type PipelineConfig struct {
	// Workers bounds concurrently summarized shards
	Workers int `json:"workers" yaml:"workers"`

	// Shards is the number of customer shards
	Shards int `json:"shards" yaml:"shards"`

	// FailurePolicy is fail or quarantine
	FailurePolicy string `json:"failure_policy" yaml:"failure_policy"`

	// FetchConcurrency bounds parallel input downloads
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	// Textfile is the .prom output path; empty disables metrics
	Textfile string `json:"textfile" yaml:"textfile"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/offerprofile",
		Input: InputConfig{
			Profile:    "profile.json",
			Portfolio:  "portfolio.json",
			Transcript: "transcript.json",
		},
		Output: OutputConfig{
			Object: "output/customer_profiles.db",
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Pipeline: PipelineConfig{
			Workers:          runtime.NumCPU(),
			FailurePolicy:    "fail",
			FetchConcurrency: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/offerprofile"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "."
	}
	if c.Output.Database == "" {
		c.Output.Database = filepath.Join(c.DataDir, "customer_profiles.db")
	}
	if c.Pipeline.Shards <= 0 {
		c.Pipeline.Shards = 4 * c.Pipeline.Workers
	}
}

// WorkDir is where input datasets are downloaded.
func (c *Config) WorkDir() string {
	return filepath.Join(c.DataDir, "work")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Input.Profile == "" || c.Input.Portfolio == "" || c.Input.Transcript == "" {
		return fmt.Errorf("input.profile, input.portfolio and input.transcript are required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}

	switch c.Pipeline.FailurePolicy {
	case "fail", "quarantine":
	default:
		return fmt.Errorf("invalid pipeline.failure_policy: %s (must be fail or quarantine)", c.Pipeline.FailurePolicy)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format: %s (must be text or json)", c.Log.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv applies OFFERPROFILE_* environment overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Inputs
	if v := os.Getenv(EnvPrefix + "INPUT_PROFILE"); v != "" {
		cfg.Input.Profile = v
	}
	if v := os.Getenv(EnvPrefix + "INPUT_PORTFOLIO"); v != "" {
		cfg.Input.Portfolio = v
	}
	if v := os.Getenv(EnvPrefix + "INPUT_TRANSCRIPT"); v != "" {
		cfg.Input.Transcript = v
	}

	// Output
	if v := os.Getenv(EnvPrefix + "OUTPUT_DATABASE"); v != "" {
		cfg.Output.Database = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_OBJECT"); v != "" {
		cfg.Output.Object = v
	}

	// Pipeline
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.Workers)
	}
	if v := os.Getenv(EnvPrefix + "SHARDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.Shards)
	}
	if v := os.Getenv(EnvPrefix + "FAILURE_POLICY"); v != "" {
		cfg.Pipeline.FailurePolicy = v
	}

	// Storage
	if v := os.Getenv(EnvPrefix + "STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvPrefix + "S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv(EnvPrefix + "S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv(EnvPrefix + "S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Logging
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Metrics
	if v := os.Getenv(EnvPrefix + "METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.WorkDir(),
		filepath.Dir(c.Output.Database),
	}
	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
