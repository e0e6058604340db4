// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/watzon/authhook/internal/config"
)

// Setup initializes the global logger from cfg. The returned closer flushes
// and closes the rotated log file when output is "file" and is a no-op
// otherwise.
func Setup(cfg *config.LoggingConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	writer, closer, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	log.Debug().
		Str("level", cfg.Level).
		Str("format", cfg.Format).
		Str("output", cfg.Output).
		Msg("Logger initialized")

	return closer, nil
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "panic":
		return zerolog.PanicLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown level: %s", level)
	}
}

func newWriter(cfg *config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		return formatted(os.Stdout, cfg.Format), nopCloser{}, nil
	case "stderr":
		return formatted(os.Stderr, cfg.Format), nopCloser{}, nil
	case "file":
		lj, err := newFileWriter(&cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("setting up log file: %w", err)
		}
		// Files always get JSON so they stay machine readable.
		return lj, lj, nil
	default:
		return nil, nil, fmt.Errorf("invalid log output %q", cfg.Output)
	}
}

func formatted(out io.Writer, format string) io.Writer {
	if strings.ToLower(format) == "console" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}
	return out
}

func newFileWriter(cfg *config.LogFileConfig) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
