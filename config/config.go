// Package config loads request logging settings from a YAML file, an
// optional .env file and REQLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when Load is given an empty path and the file exists.
const DefaultPath = "config/config.yaml"

// Log formats.
const (
	FormatJSON  = "json"
	FormatSmart = "smart"
	FormatTint  = "tint"
)

// Sink types.
const (
	SinkNone       = "none"
	SinkSQLite     = "sqlite"
	SinkPostgreSQL = "postgresql"
	SinkMongoDB    = "mongodb"
	SinkRedis      = "redis"
)

// Config holds every request logging setting.
type Config struct {
	EnableOutboundRequestLogging  bool `yaml:"enable_outbound_request_logging"`
	EnableLoggingMiddleware       bool `yaml:"enable_logging_middleware"`
	EnableSensitivePathsProcessor bool `yaml:"enable_sensitive_paths_processor"`
	// EnableRequestsLogging installs the outbound logger on
	// http.DefaultTransport.
	EnableRequestsLogging Flag `yaml:"enable_requests_logging"`

	MaxVerboseOutputLength int      `yaml:"max_verbose_output_length"`
	MaxJSONDataToLog       int      `yaml:"max_json_data_to_log"`
	MiddlewareBlocklist    []string `yaml:"middleware_blocklist"`
	LoggerName             string   `yaml:"logger_name"`
	LogResponseContent     bool     `yaml:"log_response_content"`

	PreferTextFallbackMasking      bool `yaml:"prefer_text_fallback_masking"`
	ShowNestedKeysInSensitivePaths bool `yaml:"show_nested_keys_in_sensitive_paths"`
	RedactSensitiveHeaders         bool `yaml:"redact_sensitive_headers"`

	LogFormat    string         `yaml:"log_format"`
	LogLevel     string         `yaml:"log_level"`
	DefaultExtra map[string]any `yaml:"default_extra"`

	Masks []MaskRule `yaml:"masks"`
	// RouteMasks maps path prefixes to mask names applied to every request
	// under the prefix.
	RouteMasks map[string][]string `yaml:"route_masks"`

	Sink    SinkConfig    `yaml:"sink"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`

	source string
}

// MaskRule registers a named set of sensitive paths. Values lists value
// detectors (email, phone, ssn, credit_card, ip) that mask matching text
// anywhere in the payload.
type MaskRule struct {
	Name   string   `yaml:"name"`
	Paths  []string `yaml:"paths"`
	Values []string `yaml:"values"`
	Global bool     `yaml:"global"`
}

// SinkConfig selects where END events are persisted.
type SinkConfig struct {
	// Type is one of none, sqlite, postgresql, mongodb or redis.
	Type string `yaml:"type"`

	SQLitePath         string `yaml:"sqlite_path"`
	PostgreSQLURL      string `yaml:"postgresql_url"`
	PostgreSQLMaxConns int    `yaml:"postgresql_max_conns"`
	MongoDBURL         string `yaml:"mongodb_url"`
	MongoDBDatabase    string `yaml:"mongodb_database"`
	RedisURL           string `yaml:"redis_url"`
	RedisStream        string `yaml:"redis_stream"`
	RedisMaxLen        int64  `yaml:"redis_max_len"`

	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RetentionDays int           `yaml:"retention_days"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string `yaml:"port"`
	UpstreamURL   string `yaml:"upstream_url"`
	BodySizeLimit string `yaml:"body_size_limit"`
	// MaxBodyCapture caps the body bytes kept for logging.
	MaxBodyCapture int64 `yaml:"max_body_capture"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		EnableOutboundRequestLogging: true,
		EnableLoggingMiddleware:      true,
		MaxVerboseOutputLength:       500,
		MiddlewareBlocklist:          []string{"metrics", "swagger"},
		LoggerName:                   "reqlog",
		RedactSensitiveHeaders:       true,
		LogFormat:                    FormatJSON,
		LogLevel:                     "info",
		Sink: SinkConfig{
			Type:            SinkNone,
			SQLitePath:      "data/reqlog.db",
			MongoDBDatabase: "reqlog",
			RedisStream:     "reqlog:events",
			RedisMaxLen:     100000,
			BufferSize:      1000,
			FlushInterval:   5 * time.Second,
			RetentionDays:   30,
		},
		Server: ServerConfig{
			Port:           "8080",
			BodySizeLimit:  "10M",
			MaxBodyCapture: 1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Load reads the settings. Defaults come first, then the YAML file at path
// (DefaultPath when empty and present), then REQLOG_* variables. A .env
// file in the working directory is loaded into the environment first and
// never overrides variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	cfg.source = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg.source = ""
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reconfigure reloads the settings from the sources Load used and replaces
// c with the result. On error c is left unchanged.
func (c *Config) Reconfigure() error {
	fresh, err := Load(c.source)
	if err != nil {
		return err
	}
	*c = *fresh
	return nil
}

// Source returns the config file that was read, or "" when none was.
func (c *Config) Source() string {
	return c.source
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxVerboseOutputLength < 0 {
		errs = append(errs, fmt.Errorf("max_verbose_output_length must not be negative, got %d", c.MaxVerboseOutputLength))
	}
	if c.MaxJSONDataToLog < 0 {
		errs = append(errs, fmt.Errorf("max_json_data_to_log must not be negative, got %d", c.MaxJSONDataToLog))
	}

	switch strings.ToLower(c.LogFormat) {
	case FormatJSON, FormatSmart, FormatTint:
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: json, smart, tint)", c.LogFormat))
	}

	switch c.Sink.Type {
	case "", SinkNone, SinkSQLite, SinkPostgreSQL, SinkMongoDB, SinkRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown sink type %q (valid: none, sqlite, postgresql, mongodb, redis)", c.Sink.Type))
	}

	for i, m := range c.Masks {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("masks[%d]: name is required", i))
		}
		if len(m.Paths) == 0 && len(m.Values) == 0 {
			errs = append(errs, fmt.Errorf("masks[%d] %q: at least one path or value detector is required", i, m.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
