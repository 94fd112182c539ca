package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Ingest      IngestConfig   `toml:"ingest"`
	Reddit      RedditConfig   `toml:"reddit"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Schedule    ScheduleConfig `toml:"schedule"`
	Sources     SourcesConfig  `toml:"sources"`
}

// IngestConfig contains the ingestion engine tuning knobs.
type IngestConfig struct {
	RequestsPerMinute    int `toml:"requests_per_minute" validate:"gt=0,lte=600"`   // sliding-window ceiling for source API calls
	BatchSaveInterval    int `toml:"batch_save_interval" validate:"gt=0"`           // items per persistence batch
	MaxRetryAttempts     int `toml:"max_retry_attempts" validate:"gte=1,lte=10"`    // rate-limit retry ceiling per operation
	LargeThreadThreshold int `toml:"large_thread_threshold" validate:"gte=0"`       // reported comment count above which expansion is capped
	LargeThreadExpansion int `toml:"large_thread_expansion" validate:"gt=0"`        // conservative comment cap for huge threads
	DiscoveryLimit       int `toml:"discovery_limit" validate:"gt=0,lte=1000"`      // recent submissions scanned for discussion threads
	BackfillScanLimit    int `toml:"backfill_scan_limit" validate:"gt=0,lte=1000"`  // recent submissions scanned per backfill range
	LinkerWorkers        int `toml:"linker_workers" validate:"gte=1,lte=64"`        // bounded pool size for entity linking
}

// RedditConfig contains platform API credentials. The OAuth flow itself is
// owned by the platform client library, not this application.
type RedditConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	UserAgent    string `toml:"user_agent"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                       // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                  // Time format for logs (default: "15:04:05")
}

// ScheduleConfig drives serve mode's recurring incremental runs.
type ScheduleConfig struct {
	Cron string `toml:"cron"` // standard 5-field cron expression
}

// SourcesConfig points at the YAML file defining the scraped sources.
type SourcesConfig struct {
	File string `toml:"file" validate:"required"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings need to appear in stocktalk.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Ingest: IngestConfig{
			RequestsPerMinute:    60,   // Reddit OAuth ceiling
			BatchSaveInterval:    200,  // progress committed every 200 items
			MaxRetryAttempts:     3,    // per extraction, then skip the thread
			LargeThreadThreshold: 3000, // cap expansion above this reported count
			LargeThreadExpansion: 2000,
			DiscoveryLimit:       100,
			BackfillScanLimit:    1000, // listing depth the source serves at most
			LinkerWorkers:        4,
		},
		Reddit: RedditConfig{
			UserAgent: "stocktalk/" + Version,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Schedule: ScheduleConfig{
			Cron: "*/30 * * * *", // every 30 minutes
		},
		Sources: SourcesConfig{
			File: "./sources.yaml",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path skips the file overlay and returns defaults plus env.
func LoadFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies STOCKTALK_* environment variables on top of the
// loaded configuration. Credentials are the main use case so they can stay
// out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKTALK_REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv("STOCKTALK_REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("STOCKTALK_REDDIT_USERNAME"); v != "" {
		cfg.Reddit.Username = v
	}
	if v := os.Getenv("STOCKTALK_REDDIT_PASSWORD"); v != "" {
		cfg.Reddit.Password = v
	}
	if v := os.Getenv("STOCKTALK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STOCKTALK_BADGER_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("STOCKTALK_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RequestsPerMinute = n
		}
	}
}

// BatchInterval returns the batch save interval, guarding the zero value for
// callers constructed without going through LoadFromFile.
func (c *IngestConfig) BatchInterval() int {
	if c.BatchSaveInterval <= 0 {
		return 200
	}
	return c.BatchSaveInterval
}

// RetryCeiling returns the retry attempt ceiling with the same guard.
func (c *IngestConfig) RetryCeiling() int {
	if c.MaxRetryAttempts <= 0 {
		return 3
	}
	return c.MaxRetryAttempts
}
