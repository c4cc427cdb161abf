package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// POSTPILOT_DATABASE_URL for database.url.
const EnvPrefix = "POSTPILOT"

// Load reads configuration from ./config.yaml (optional) and environment
// variables. Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", 24*time.Hour)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.capability_timeout", 60*time.Second)
	v.SetDefault("engine.backoff_base", 2*time.Second)
	v.SetDefault("engine.backoff_cap", 5*time.Minute)
	v.SetDefault("engine.conflict_retries", 3)
	v.SetDefault("publishing.bridge_url", "")
	v.SetDefault("publishing.api_key", "")
	v.SetDefault("notify.gateway_url", "")
	v.SetDefault("notify.api_key", "")
	v.SetDefault("relay.commands_per_minute", 30)
	v.SetDefault("relay.burst", 5)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
