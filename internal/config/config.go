// Package config defines the atelier application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig controls the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig controls API token issuance and verification.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DefaultConfig returns a config with sensible defaults. Environment
// variables override defaults so containers can run without a file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: envOrDefault("ATELIER_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			Path: envOrDefault("ATELIER_DB_PATH", "data/atelier.db"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("ATELIER_JWT_SECRET"),
			TokenTTL:  24 * time.Hour,
		},
		LogLevel: envOrDefault("ATELIER_LOG_LEVEL", "info"),
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// envOrDefault returns the environment variable value or fallback when it
// is empty.
func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
