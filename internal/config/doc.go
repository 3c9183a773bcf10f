// Package config defines the application configuration structure and loads
// it from environment variables and optional config files. All settings are
// validated before use; the rest of the application receives a Config value
// it can trust.
package config
