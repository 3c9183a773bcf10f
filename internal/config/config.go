package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Ops      OpsConfig      `mapstructure:"ops"      validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// GmailConfig contains the OAuth2 credentials used to read mailboxes.
// Optional: without credentials the sync endpoints reject requests, but the
// rest of the API still works.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	MaxMessages  int64  `mapstructure:"max_messages" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
	MaxRetries   int    `mapstructure:"max_retries"    validate:"gte=0"`
}

// OpsConfig tunes the operation engine: cache bounds, reclaimer cadence and
// timeouts, waiter polling and response chunking.
type OpsConfig struct {
	CacheSize                int `mapstructure:"cache_size"                 validate:"required,gt=0"`
	CacheTTLSeconds          int `mapstructure:"cache_ttl_seconds"          validate:"required,gt=0"`
	ReclaimerIntervalSeconds int `mapstructure:"reclaimer_interval_seconds" validate:"required,gt=0"`
	OperationTimeoutSeconds  int `mapstructure:"operation_timeout_seconds"  validate:"required,gt=0"`
	RetentionHours           int `mapstructure:"retention_hours"            validate:"gte=0"`
	WaiterPollMillis         int `mapstructure:"waiter_poll_millis"         validate:"required,gt=0"`
	ChunkMinSize             int `mapstructure:"chunk_min_size"             validate:"required,gt=0"`
	ChunkMaxWaitMillis       int `mapstructure:"chunk_max_wait_millis"      validate:"required,gt=0"`
}
