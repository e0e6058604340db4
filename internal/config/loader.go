package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultEnvPrefix is the prefix for environment overrides, e.g.
// AUTHHOOK_WEBHOOK_SECRET or AUTHHOOK_RATE_LIMIT_MAX.
const DefaultEnvPrefix = "AUTHHOOK"

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch reloads the config file whenever it changes on disk and hands the
// result to onChange. Reloads that fail to parse or validate are reported
// through onError and the previous configuration stays in effect.
func Watch(opts LoadOptions, onChange func(*Config, fsnotify.Event), onError func(error)) (string, error) {
	v, err := newViper(opts)
	if err != nil {
		return "", err
	}
	used := v.ConfigFileUsed()
	if used == "" {
		return "", ErrConfigNotFound
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(LoadOptions{ConfigFile: used, EnvPrefix: opts.EnvPrefix, Defaults: opts.Defaults})
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg, e)
	})
	v.WatchConfig()

	return used, nil
}

func newViper(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("authhook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/authhook")
		v.AddConfigPath("/etc/authhook")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.trusted_proxies", cfg.Server.TrustedProxies)

	v.SetDefault("webhook.secret", cfg.Webhook.Secret)
	v.SetDefault("webhook.signature_header", cfg.Webhook.SignatureHeader)
	v.SetDefault("webhook.downstream_timeout", cfg.Webhook.DownstreamTimeout)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.max", cfg.RateLimit.Max)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("rate_limit.key_header", cfg.RateLimit.KeyHeader)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
	v.SetDefault("logging.file.path", cfg.Logging.File.Path)
	v.SetDefault("logging.file.max_size_mb", cfg.Logging.File.MaxSizeMB)
	v.SetDefault("logging.file.max_backups", cfg.Logging.File.MaxBackups)
	v.SetDefault("logging.file.max_age_days", cfg.Logging.File.MaxAgeDays)
	v.SetDefault("logging.file.compress", cfg.Logging.File.Compress)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("admin.token", cfg.Admin.Token)

	v.SetDefault("delivery_log.capacity", cfg.DeliveryLog.Capacity)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"authhook.yaml",
		"authhook.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "authhook", "authhook.yaml"),
		"/etc/authhook/authhook.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
