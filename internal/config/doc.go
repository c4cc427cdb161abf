// Package config loads and validates service configuration from an optional
// YAML file and POSTPILOT_-prefixed environment variables using viper and
// go-playground/validator.
package config
