// Package config provides configuration management for authhook.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for authhook.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Webhook     WebhookConfig     `mapstructure:"webhook" yaml:"webhook"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Admin       AdminConfig       `mapstructure:"admin" yaml:"admin"`
	DeliveryLog DeliveryLogConfig `mapstructure:"delivery_log" yaml:"delivery_log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host" yaml:"host"`

	// Port to listen on
	Port int `mapstructure:"port" yaml:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// How long to wait for in-flight requests on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size" yaml:"max_body_size"`

	// Glob patterns of peer addresses whose X-Forwarded-For / X-Real-IP
	// headers are trusted when resolving the client identity.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

// WebhookConfig holds the signed webhook endpoint settings.
type WebhookConfig struct {
	// Shared HMAC secret
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Header carrying the sha256=<hex> signature
	SignatureHeader string `mapstructure:"signature_header" yaml:"signature_header"`

	// Bound on each downstream user service call
	DownstreamTimeout time.Duration `mapstructure:"downstream_timeout" yaml:"downstream_timeout"`
}

// RateLimitRule defines a fixed-window rate limit.
type RateLimitRule struct {
	// Maximum requests per window
	Max int `mapstructure:"max" yaml:"max"`

	// Window length
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// RateLimitConfig holds the webhook rate limit settings.
type RateLimitConfig struct {
	RateLimitRule `mapstructure:",squash" yaml:",inline"`

	// Enable rate limiting
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Optional request header identifying the client (e.g. an API key).
	// Falls back to the client IP when empty or absent from the request.
	KeyHeader string `mapstructure:"key_header" yaml:"key_header"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file, ":memory:" for an in-memory database
	Path string `mapstructure:"path" yaml:"path"`

	// Enable WAL mode
	WALMode bool `mapstructure:"wal_mode" yaml:"wal_mode"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (trace, debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format" yaml:"format"`

	// Output destination (stdout, stderr, file)
	Output string `mapstructure:"output" yaml:"output"`

	// Include caller info
	Caller bool `mapstructure:"caller" yaml:"caller"`

	// Rotated file output, used when Output is "file"
	File LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig holds log file rotation settings.
type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AdminConfig holds settings for the internal inspection endpoints.
type AdminConfig struct {
	// Bearer token for the deliveries endpoint; empty disables it
	Token string `mapstructure:"token" yaml:"token"`
}

// DeliveryLogConfig holds settings for the in-memory delivery log.
type DeliveryLogConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Redacted returns a copy of the config with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	if out.Webhook.Secret != "" {
		out.Webhook.Secret = redactedValue
	}
	if out.Admin.Token != "" {
		out.Admin.Token = redactedValue
	}
	return &out
}

const redactedValue = "********"
