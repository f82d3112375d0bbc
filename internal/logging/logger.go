// Package logging builds the two loggers the binaries use: a JSON slog
// logger for process and pipeline events, and a logrus logger handed to
// the services.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// StandardLogger writes structured process, pipeline, cache and database
// events.
type StandardLogger struct {
	logger *slog.Logger
}

// NewStandardLogger creates a JSON logger on stdout at the given level.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return NewStandardLoggerWithWriter(os.Stdout, logLevel, environment)
}

// NewStandardLoggerWithWriter is NewStandardLogger with an explicit sink.
func NewStandardLoggerWithWriter(w io.Writer, logLevel string, environment string) *StandardLogger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: getSlogLevel(logLevel),
	}))
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	return &StandardLogger{logger: logger}
}

// WithRunID scopes the logger to one pipeline run.
func (l *StandardLogger) WithRunID(runID string) *slog.Logger {
	return l.logger.With("run_id", runID)
}

// WithSymbol scopes the logger to one coin.
func (l *StandardLogger) WithSymbol(symbol string) *slog.Logger {
	return l.logger.With("symbol", symbol)
}

// WithError attaches err, if any.
func (l *StandardLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.logger
	}
	return l.logger.With("error", err.Error())
}

func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"port", port,
		"event", "startup",
	)
}

func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

// LogCacheOperation logs at debug; a run makes one lookup per coin.
func (l *StandardLogger) LogCacheOperation(operation string, key string, hit bool, durationMs int64) {
	l.logger.Debug("Cache operation",
		"operation", operation,
		"key", key,
		"hit", hit,
		"duration_ms", durationMs,
		"event", "cache",
	)
}

func (l *StandardLogger) LogDatabaseOperation(operation string, table string, durationMs int64, rowsAffected int64) {
	l.logger.Info("Database operation",
		"operation", operation,
		"table", table,
		"duration_ms", durationMs,
		"rows_affected", rowsAffected,
		"event", "database",
	)
}

// LogPipelineEvent logs a pipeline stage transition or summary.
func (l *StandardLogger) LogPipelineEvent(eventType string, details map[string]interface{}) {
	l.logger.Info("Pipeline event",
		"event_type", eventType,
		"details", details,
		"event", "pipeline",
	)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

// NewLogrusLogger builds the logrus logger handed to the resilience
// services. Production gets JSON output; everything else gets text.
func NewLogrusLogger(logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(logLevel))
	if strings.EqualFold(environment, "production") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
