package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders. A variable
// that is unset or empty takes its default. Without a default the
// placeholder is left as is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		m := placeholder.FindStringSubmatch(match)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		return match
	})
}

// Flag is a boolean that also accepts words: any value starting with 'y' or
// 't' (case-insensitive) is true, everything else is false.
type Flag bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	*f = Flag(parseFlag(value.Value))
	return nil
}

func parseFlag(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return false
	}
	return s[0] == 'y' || s[0] == 't'
}

// EnvPrefix starts every environment override.
const EnvPrefix = "REQLOG_"

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

func boolEnv(target func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*target(cfg) = parseFlag(v)
		return nil
	}
}

func intEnv(target func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*target(cfg) = n
		return nil
	}
}

func stringEnv(target func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*target(cfg) = v
		return nil
	}
}

func listEnv(target func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*target(cfg) = items
		return nil
	}
}

var envBindings = []envBinding{
	{"ENABLE_OUTBOUND_REQUEST_LOGGING", boolEnv(func(c *Config) *bool { return &c.EnableOutboundRequestLogging })},
	{"ENABLE_LOGGING_MIDDLEWARE", boolEnv(func(c *Config) *bool { return &c.EnableLoggingMiddleware })},
	{"ENABLE_SENSITIVE_PATHS_PROCESSOR", boolEnv(func(c *Config) *bool { return &c.EnableSensitivePathsProcessor })},
	{"ENABLE_REQUESTS_LOGGING", func(c *Config, v string) error {
		c.EnableRequestsLogging = Flag(parseFlag(v))
		return nil
	}},
	{"MAX_VERBOSE_OUTPUT_LENGTH", intEnv(func(c *Config) *int { return &c.MaxVerboseOutputLength })},
	{"MAX_JSON_DATA_TO_LOG", intEnv(func(c *Config) *int { return &c.MaxJSONDataToLog })},
	{"MIDDLEWARE_BLOCKLIST", listEnv(func(c *Config) *[]string { return &c.MiddlewareBlocklist })},
	{"LOGGER_NAME", stringEnv(func(c *Config) *string { return &c.LoggerName })},
	{"LOG_RESPONSE_CONTENT", boolEnv(func(c *Config) *bool { return &c.LogResponseContent })},
	{"PREFER_TEXT_FALLBACK_MASKING", boolEnv(func(c *Config) *bool { return &c.PreferTextFallbackMasking })},
	{"SHOW_NESTED_KEYS_IN_SENSITIVE_PATHS", boolEnv(func(c *Config) *bool { return &c.ShowNestedKeysInSensitivePaths })},
	{"REDACT_SENSITIVE_HEADERS", boolEnv(func(c *Config) *bool { return &c.RedactSensitiveHeaders })},
	{"LOG_FORMAT", stringEnv(func(c *Config) *string { return &c.LogFormat })},
	{"LOG_LEVEL", stringEnv(func(c *Config) *string { return &c.LogLevel })},

	{"PORT", stringEnv(func(c *Config) *string { return &c.Server.Port })},
	{"UPSTREAM_URL", stringEnv(func(c *Config) *string { return &c.Server.UpstreamURL })},
	{"BODY_SIZE_LIMIT", stringEnv(func(c *Config) *string { return &c.Server.BodySizeLimit })},
	{"METRICS_ENABLED", boolEnv(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"METRICS_ENDPOINT", stringEnv(func(c *Config) *string { return &c.Metrics.Endpoint })},

	{"SINK_TYPE", stringEnv(func(c *Config) *string { return &c.Sink.Type })},
	{"SINK_SQLITE_PATH", stringEnv(func(c *Config) *string { return &c.Sink.SQLitePath })},
	{"SINK_POSTGRESQL_URL", stringEnv(func(c *Config) *string { return &c.Sink.PostgreSQLURL })},
	{"SINK_MONGODB_URL", stringEnv(func(c *Config) *string { return &c.Sink.MongoDBURL })},
	{"SINK_MONGODB_DATABASE", stringEnv(func(c *Config) *string { return &c.Sink.MongoDBDatabase })},
	{"SINK_REDIS_URL", stringEnv(func(c *Config) *string { return &c.Sink.RedisURL })},
	{"SINK_REDIS_STREAM", stringEnv(func(c *Config) *string { return &c.Sink.RedisStream })},
	{"SINK_BUFFER_SIZE", intEnv(func(c *Config) *int { return &c.Sink.BufferSize })},
	{"SINK_RETENTION_DAYS", intEnv(func(c *Config) *int { return &c.Sink.RetentionDays })},
	{"SINK_FLUSH_INTERVAL", func(c *Config, v string) error {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Sink.FlushInterval = time.Duration(secs) * time.Second
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Sink.FlushInterval = d
		return nil
	}},
}

// applyEnv applies REQLOG_* overrides to cfg.
func applyEnv(cfg *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, b.name, err)
		}
	}
	return nil
}
