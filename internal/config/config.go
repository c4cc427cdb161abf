package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Engine     EngineConfig     `mapstructure:"engine" validate:"required"`
	Publishing PublishingConfig `mapstructure:"publishing"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Relay      RelayConfig      `mapstructure:"relay"`

	// Accounts are upserted into storage when the server starts.
	Accounts []AccountSeed `mapstructure:"accounts" validate:"dive"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig selects and configures the storage capability.
type DatabaseConfig struct {
	// Driver is postgres for durable storage or memory for local runs.
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url" validate:"required_if=Driver postgres"`
}

// AuthConfig contains the REST API authentication settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// Provider is gemini, or template for an offline generator that fills a
	// fixed layout from the generation config.
	Provider     string `mapstructure:"provider" validate:"required,oneof=gemini template"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	ModelName    string `mapstructure:"model_name" validate:"required_if=Provider gemini"`
}

// EngineConfig tunes the task orchestration engine.
type EngineConfig struct {
	Workers           int           `mapstructure:"workers" validate:"gte=1"`
	CapabilityTimeout time.Duration `mapstructure:"capability_timeout" validate:"gt=0"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" validate:"gt=0"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap" validate:"gtefield=BackoffBase"`
	ConflictRetries   int           `mapstructure:"conflict_retries" validate:"gte=1,lte=10"`
}

// PublishingConfig points the publisher at the platform bridge. An empty
// BridgeURL selects a dry-run publisher that only logs.
type PublishingConfig struct {
	BridgeURL string `mapstructure:"bridge_url" validate:"omitempty,url"`
	APIKey    string `mapstructure:"api_key"`
}

// NotifyConfig points the notifier at the push gateway. An empty GatewayURL
// logs pushes instead of sending them.
type NotifyConfig struct {
	GatewayURL string `mapstructure:"gateway_url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
}

// RelayConfig limits how fast a single device may send commands. Zero
// disables the limit.
type RelayConfig struct {
	CommandsPerMinute int `mapstructure:"commands_per_minute" validate:"gte=0"`
	Burst             int `mapstructure:"burst" validate:"gte=0"`
}

// AccountSeed describes a publishing account provisioned from configuration.
type AccountSeed struct {
	ID       string `mapstructure:"id"       validate:"required,uuid"`
	Platform string `mapstructure:"platform" validate:"required,max=64"`
	Name     string `mapstructure:"name"     validate:"required,max=255"`
	Status   string `mapstructure:"status"   validate:"omitempty,oneof=active inactive suspended"`
}
