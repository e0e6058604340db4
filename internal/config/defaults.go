package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost            = "localhost"
	DefaultPort            = 3000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodySize     = 1 * 1024 * 1024 // 1MB

	// Webhook defaults.
	DefaultSignatureHeader   = "X-Firebase-Signature"
	DefaultDownstreamTimeout = 5 * time.Second

	// Rate limit defaults.
	DefaultRateLimitMax    = 100
	DefaultRateLimitWindow = time.Minute

	// Database defaults.
	DefaultDBPath       = "authhook.db"
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // single writer

	// Logging defaults.
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogOutput     = "stdout"
	DefaultLogFilePath   = "authhook.log"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28

	// Metrics defaults.
	DefaultMetricsPath = "/metrics"

	// Delivery log defaults.
	DefaultDeliveryLogCapacity = 1000

	// Minimum accepted webhook secret length.
	MinSecretLength = 16
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBodySize:     DefaultMaxBodySize,
			TrustedProxies:  []string{},
		},
		Webhook: WebhookConfig{
			SignatureHeader:   DefaultSignatureHeader,
			DownstreamTimeout: DefaultDownstreamTimeout,
		},
		RateLimit: RateLimitConfig{
			RateLimitRule: RateLimitRule{
				Max:    DefaultRateLimitMax,
				Window: DefaultRateLimitWindow,
			},
			Enabled: true,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			BusyTimeout:  DefaultBusyTimeout,
			MaxOpenConns: DefaultMaxOpenConns,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
			File: LogFileConfig{
				Path:       DefaultLogFilePath,
				MaxSizeMB:  DefaultLogMaxSizeMB,
				MaxBackups: DefaultLogMaxBackups,
				MaxAgeDays: DefaultLogMaxAgeDays,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
		DeliveryLog: DeliveryLogConfig{
			Capacity: DefaultDeliveryLogCapacity,
		},
	}
}
