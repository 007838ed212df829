// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	NoColor    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "holdings-tracker", "logs", "tracker.log"),
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a logger writing to stderr, a rotating file, or both.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr, cfg.NoColor))
	}

	if cfg.File {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer = os.Stderr
	switch len(writers) {
	case 0:
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

// consoleWriter renders short coloured level tags for the terminal.
func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
	}
	if noColor {
		return w
	}
	w.FormatLevel = func(i interface{}) string {
		ll, _ := i.(string)
		switch ll {
		case "debug":
			return "\033[36mDBG\033[0m"
		case "info":
			return "\033[32mINF\033[0m"
		case "warn":
			return "\033[33mWRN\033[0m"
		case "error":
			return "\033[31mERR\033[0m"
		}
		return ll
	}
	return w
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// WithBasket adds a basket fingerprint to the logger context.
func WithBasket(logger zerolog.Logger, basketKey string) zerolog.Logger {
	return logger.With().Str("basket", basketKey).Logger()
}

// LogFetch logs the outcome of a single-symbol quote fetch.
func LogFetch(logger zerolog.Logger, symbol, exchange string, duration time.Duration, err error) {
	if err != nil {
		logger.Warn().
			Str("event", "fetch").
			Str("symbol", symbol).
			Str("exchange", exchange).
			Dur("duration", duration).
			Err(err).
			Msg("Quote fetch failed")
		return
	}
	logger.Debug().
		Str("event", "fetch").
		Str("symbol", symbol).
		Str("exchange", exchange).
		Dur("duration", duration).
		Msg("Quote fetched")
}

// LogRefresh logs a completed pipeline pass.
func LogRefresh(logger zerolog.Logger, basketKey string, symbols, failed int, cached bool, duration time.Duration) {
	logger.Info().
		Str("event", "refresh").
		Str("basket", basketKey).
		Int("symbols", symbols).
		Int("failed", failed).
		Bool("cached", cached).
		Dur("duration", duration).
		Msg("Portfolio refreshed")
}

// LogAPICall logs an API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
