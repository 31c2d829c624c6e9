// Package observability holds the process-wide logger.
//
// Library packages take a *zap.Logger through their constructors and
// default to a nop logger, so only the command layer touches this
// package. InitLogger is called once from the root command's
// PersistentPreRunE.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger. It is a nop until InitLogger runs, so
// callers never need a nil check.
var Logger = zap.NewNop()

// InitLogger builds the process logger. level is a zap level name
// ("debug", "info", "warn", "error"); format is "json" or "console".
func InitLogger(level, format string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json", "":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Logger = logger
	return nil
}

// Sync flushes buffered log entries. Called on process exit.
func Sync() {
	_ = Logger.Sync()
}
