package logging

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// LevelFromEnv reads a log level from the named environment variable.
// Unset or unrecognized values yield fallback.
func LevelFromEnv(envVar string, fallback zapcore.Level) zapcore.Level {
	value := os.Getenv(envVar)
	if value == "" {
		return fallback
	}
	return ParseLevel(value, fallback)
}

// ParseLevel maps a level name to its zapcore level. Case-insensitive;
// recognized names are debug, info, warn, warning, error and fatal.
func ParseLevel(name string, fallback zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return fallback
	}
}
