package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory; absence is not an error.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with the ALCHEMY_ prefix override file values,
	// e.g. ALCHEMY_DATABASE_URL, ALCHEMY_WORKER_MAX_CONCURRENT_TASKS.
	v.SetEnvPrefix("ALCHEMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every knob so a minimal environment
// (database URL and API key only) produces a working configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registered empty so AutomaticEnv can bind them; validation rejects
	// configurations that leave them unset.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.gemini_api_key", "")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.max_age", 24*time.Hour)
	v.SetDefault("cache.cleanup_interval", time.Hour)

	v.SetDefault("worker.max_concurrent_tasks", 4)
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.operation_timeout", 2*time.Minute)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_base_delay", 2*time.Second)
	v.SetDefault("worker.retry_max_delay", 30*time.Second)

	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.retry_base_delay", time.Second)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
}
