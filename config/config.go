// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Schemas  SchemasConfig  `yaml:"schemas"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
}

// SchemasConfig locates the declarative schema files.
type SchemasConfig struct {
	// Paths are YAML files or directories of YAML files.
	// MODELGATE_SCHEMAS_PATHS separates entries with ';'.
	Paths []string `yaml:"paths" env:"MODELGATE_SCHEMAS_PATHS"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host" env:"MODELGATE_SERVER_HOST"`
	Port           int           `yaml:"port" env:"MODELGATE_SERVER_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"MODELGATE_SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"MODELGATE_SERVER_WRITE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"MODELGATE_SERVER_REQUEST_TIMEOUT"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"MODELGATE_SERVER_MAX_BODY_BYTES"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures record storage.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" env:"MODELGATE_DATABASE_ENABLED"`
	DSN     string `yaml:"dsn" env:"MODELGATE_DATABASE_DSN"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"MODELGATE_LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"MODELGATE_LOG_FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"MODELGATE_METRICS_ENABLED"` // Enable /metrics endpoint
	Path    string `yaml:"path" env:"MODELGATE_METRICS_PATH"`       // Custom path (default: /metrics)
}

// OpenAPIConfig describes the generated OpenAPI document.
type OpenAPIConfig struct {
	Title       string `yaml:"title" env:"MODELGATE_OPENAPI_TITLE"`
	Description string `yaml:"description" env:"MODELGATE_OPENAPI_DESCRIPTION"`
	Version     string `yaml:"version" env:"MODELGATE_OPENAPI_VERSION"`
	SwaggerUI   bool   `yaml:"swagger_ui" env:"MODELGATE_OPENAPI_SWAGGER_UI"` // Serve Swagger UI at /swagger/
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	MODELGATE_SCHEMAS_PATHS         - Schema files or directories, ';' separated
//	MODELGATE_SERVER_HOST           - Server host (default: 0.0.0.0)
//	MODELGATE_SERVER_PORT           - Server port (default: 8080)
//	MODELGATE_DATABASE_ENABLED      - Enable record storage (default: false)
//	MODELGATE_DATABASE_DSN          - Database path (default: modelgate.db)
//	MODELGATE_LOG_LEVEL             - Log level: debug, info, warn, error (default: info)
//	MODELGATE_LOG_FORMAT            - Log format: json or console (default: json)
//	MODELGATE_METRICS_ENABLED       - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads from path when the file exists and from the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies MODELGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "modelgate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.OpenAPI.Title == "" {
		cfg.OpenAPI.Title = "modelgate"
	}
	if cfg.OpenAPI.Version == "" {
		cfg.OpenAPI.Version = "1.0.0"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	for i, p := range cfg.Schemas.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("schemas.paths[%d] is empty", i)
		}
	}

	return nil
}
