package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateWebhook(&cfg.Webhook)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	if cfg.DeliveryLog.Capacity < 0 {
		errs = append(errs, ValidationError{
			Field:   "delivery_log.capacity",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be positive",
		})
	}

	for _, pattern := range cfg.TrustedProxies {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.trusted_proxies",
				Message: fmt.Sprintf("invalid pattern %q: %v", pattern, err),
			})
		}
	}

	return errs
}

func validateWebhook(cfg *WebhookConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.SignatureHeader == "" {
		errs = append(errs, ValidationError{
			Field:   "webhook.signature_header",
			Message: "required",
		})
	} else if strings.ContainsAny(cfg.SignatureHeader, " \t:") {
		errs = append(errs, ValidationError{
			Field:   "webhook.signature_header",
			Message: "must be a valid header name",
		})
	}

	if cfg.DownstreamTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "webhook.downstream_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Max < 1 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.max",
			Message: "must be at least 1",
		})
	}

	if cfg.Window < time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.window",
			Message: "must be at least 1ms",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "required",
		})
	}

	if cfg.MaxOpenConns < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	switch cfg.Output {
	case "stdout", "stderr":
	case "file":
		if cfg.File.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file.path",
				Message: "required when logging.output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: "must be one of: stdout, stderr, file",
		})
	}

	return errs
}

func validateMetrics(cfg *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Enabled && !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "metrics.path",
			Message: "must start with '/'",
		})
	}

	return errs
}

// ValidateSecret checks the webhook secret. Validate does not, so commands
// other than serve can run without one.
func ValidateSecret(secret string) error {
	if secret == "" {
		return &ValidationError{
			Field:   "webhook.secret",
			Message: "required",
		}
	}
	if len(secret) < MinSecretLength {
		return &ValidationError{
			Field:   "webhook.secret",
			Message: fmt.Sprintf("must be at least %d characters", MinSecretLength),
		}
	}
	return nil
}
