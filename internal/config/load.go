package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files, using
// the MAILPILOT_ prefix with underscores for nesting (MAILPILOT_SERVER_PORT).
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// An explicit config file is optional; environment variables alone are a
	// complete configuration.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MAILPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not surface env-only keys to Unmarshal unless they
	// are bound, so bind every known key explicitly.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env key %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configKeys lists every configuration key for explicit env binding.
var configKeys = []string{
	"server.port",
	"server.log_level",
	"database.url",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"gmail.client_id",
	"gmail.client_secret",
	"gmail.refresh_token",
	"gmail.max_messages",
	"llm.gemini_api_key",
	"llm.model_name",
	"llm.max_retries",
	"ops.cache_size",
	"ops.cache_ttl_seconds",
	"ops.reclaimer_interval_seconds",
	"ops.operation_timeout_seconds",
	"ops.retention_hours",
	"ops.waiter_poll_millis",
	"ops.chunk_min_size",
	"ops.chunk_max_wait_millis",
}

// setDefaults configures sensible defaults for everything that has one.
// Secrets and connection strings have no defaults on purpose.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("gmail.max_messages", 100)
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("ops.cache_size", 1000)
	v.SetDefault("ops.cache_ttl_seconds", 1800)
	v.SetDefault("ops.reclaimer_interval_seconds", 60)
	v.SetDefault("ops.operation_timeout_seconds", 300)
	v.SetDefault("ops.retention_hours", 168)
	v.SetDefault("ops.waiter_poll_millis", 500)
	v.SetDefault("ops.chunk_min_size", 80)
	v.SetDefault("ops.chunk_max_wait_millis", 1200)
}
