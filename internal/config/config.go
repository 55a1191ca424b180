package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"    validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook"  validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// CacheConfig controls the fingerprint cache backend and its expiry policy.
type CacheConfig struct {
	// RedisAddr is the host:port of the Redis instance backing the cache.
	// When empty the engine falls back to the in-memory cache.
	RedisAddr string `mapstructure:"redis_addr"`

	// MaxAge is the age past which cache entries are eligible for cleanup.
	MaxAge time.Duration `mapstructure:"max_age" validate:"required"`

	// CleanupInterval is how often the background janitor runs.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"required"`
}

// WorkerConfig controls the worker pool and the external operation's
// retry policy.
type WorkerConfig struct {
	// MaxConcurrentTasks bounds the number of jobs in flight at once.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks" validate:"required,gt=0"`

	// PollInterval is how long a worker sleeps when no pending job exists.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`

	// OperationTimeout is the wall-clock bound on a single operation attempt.
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"required"`

	// MaxRetries is the number of additional attempts after the first
	// for transient operation failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// RetryBaseDelay is the initial backoff delay between attempts.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"required"`

	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay" validate:"required"`
}

// WebhookConfig controls callback delivery behavior.
type WebhookConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"      validate:"gte=0"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"required"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}
