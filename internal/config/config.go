// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers optional .env, YAML and environment on top.
// - Durations are expressed as integer milliseconds or hours so env overrides stay flat.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers understood by the repository layer.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the driver-specific data source (file path for sqlite).
	StoreDSN string `koanf:"store_dsn"`

	// DispatchInterval is the tick cadence as a Go duration string ("1m").
	DispatchInterval string `koanf:"dispatch_interval"`

	// DispatchCron, when set, replaces DispatchInterval ("0 0 * * *" for daily).
	DispatchCron string `koanf:"dispatch_cron"`

	// DispatchBatchSize bounds due entries fetched per tick.
	DispatchBatchSize int `koanf:"dispatch_batch_size"`

	// LockoutHours is the provisional bump applied after a review quiz is generated.
	LockoutHours int `koanf:"lockout_hours"`

	// TargetRetention is the recall probability at which a review is scheduled.
	TargetRetention float64 `koanf:"target_retention"`

	// QuizTimeoutMS bounds one quiz generator call.
	QuizTimeoutMS int `koanf:"quiz_timeout_ms"`

	// TickTimeoutMS bounds how long a tick waits for its batch.
	TickTimeoutMS int `koanf:"tick_timeout_ms"`

	// WorkerCount sets the number of review workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the review job queue.
	QueueSize int `koanf:"queue_size"`

	// LLMBaseURL points at an OpenAI-compatible API; empty disables generation.
	LLMBaseURL string `koanf:"llm_base_url"`

	// LLMAPIKey is sent as a bearer token.
	LLMAPIKey string `koanf:"llm_api_key"`

	// LLMModel names the chat model.
	LLMModel string `koanf:"llm_model"`

	// FallbackConcepts caps entries created lazily when a student has none.
	FallbackConcepts int `koanf:"fallback_concepts"`

	// MasteredThreshold is the mastery above which a concept counts as mastered.
	MasteredThreshold float64 `koanf:"mastered_threshold"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       DriverMemory,
		StoreDSN:          "",
		DispatchInterval:  "1m",
		DispatchCron:      "",
		DispatchBatchSize: 10,
		LockoutHours:      24,
		TargetRetention:   0.7,
		QuizTimeoutMS:     30_000,
		TickTimeoutMS:     50_000,
		WorkerCount:       runtime.NumCPU(),
		QueueSize:         100,
		LLMBaseURL:        "",
		LLMModel:          "deepseek-chat",
		FallbackConcepts:  3,
		MasteredThreshold: 0.8,
	}
}

// Interval parses DispatchInterval.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.DispatchInterval)
	if err != nil {
		return 0, fmt.Errorf("dispatch_interval: %w", err)
	}
	return d, nil
}

// Lockout returns the dispatcher lockout as a duration.
func (c *Config) Lockout() time.Duration {
	return time.Duration(c.LockoutHours) * time.Hour
}

// QuizTimeout returns the per-call generator deadline.
func (c *Config) QuizTimeout() time.Duration {
	return time.Duration(c.QuizTimeoutMS) * time.Millisecond
}

// TickTimeout returns the per-tick deadline.
func (c *Config) TickTimeout() time.Duration {
	return time.Duration(c.TickTimeoutMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TargetRetention <= 0 || c.TargetRetention >= 1:
		return fmt.Errorf("%w: target_retention must be in (0,1), got %v", ErrInvalidConfig, c.TargetRetention)
	case c.DispatchBatchSize <= 0:
		return fmt.Errorf("%w: dispatch_batch_size must be positive", ErrInvalidConfig)
	case c.LockoutHours <= 0:
		return fmt.Errorf("%w: lockout_hours must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.DispatchCron == "" {
		d, err := c.Interval()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: dispatch_interval must be positive", ErrInvalidConfig)
		}
	}
	return nil
}
