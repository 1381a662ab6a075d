// Package observability owns process-wide logging. Two loggers are exposed:
// Logger emits structured JSON for the service path, CLILogger emits
// console-friendly output for command feedback. Both are safe to use before
// Init, which replaces the default development setup with the configured
// one.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileStructured = "STRUCTURED"
	ProfileConsole    = "CONSOLE"
)

var (
	// Logger is the structured service logger.
	Logger = zap.NewNop()

	// CLILogger is the console logger for command-line feedback.
	CLILogger = newConsoleLogger(zapcore.InfoLevel)
)

// Init builds the process loggers from the configured level and profile.
// Level accepts zap's names (debug, info, warn, error); profile selects JSON
// (STRUCTURED) or console (CONSOLE) encoding for the service logger.
func Init(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToUpper(profile) {
	case ProfileStructured, "":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		Logger = logger
	case ProfileConsole:
		Logger = newConsoleLogger(lvl)
	default:
		return fmt.Errorf("unknown logging profile %q", profile)
	}

	CLILogger = newConsoleLogger(lvl)
	return nil
}

// Sync flushes buffered log entries. Called on shutdown; sync errors on
// stderr sinks are expected and ignored by callers.
func Sync() {
	_ = Logger.Sync()
	_ = CLILogger.Sync()
}

func newConsoleLogger(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
