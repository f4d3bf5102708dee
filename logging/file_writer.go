package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default file rotation configuration.
const (
	// DefaultMaxSizeMB is the maximum size in megabytes before rotation
	DefaultMaxSizeMB = 100

	// DefaultMaxBackups is the number of old log files to retain
	DefaultMaxBackups = 5

	// DefaultMaxAgeDays is the maximum number of days to retain old log files
	DefaultMaxAgeDays = 30
)

// FileWriterConfig holds configuration for the rotating file writer.
// Zero values use defaults.
type FileWriterConfig struct {
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int

	// MaxBackups is the maximum number of rotated files to retain.
	MaxBackups int

	// MaxAgeDays is the maximum age in days of retained rotated files.
	MaxAgeDays int

	// Compress enables gzip compression of rotated files.
	Compress bool
}

// DefaultFileWriterConfig returns a FileWriterConfig with default values.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
	}
}

// NewFileWriter creates a zapcore.WriteSyncer that writes to a file with
// automatic size-based rotation, using the default configuration.
func NewFileWriter(path string) zapcore.WriteSyncer {
	return NewFileWriterWithConfig(path, DefaultFileWriterConfig())
}

// NewFileWriterWithConfig creates a rotating file WriteSyncer with custom
// configuration. Zero-value fields fall back to defaults.
func NewFileWriterWithConfig(path string, config FileWriterConfig) zapcore.WriteSyncer {
	if config.MaxSizeMB == 0 {
		config.MaxSizeMB = DefaultMaxSizeMB
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = DefaultMaxBackups
	}
	if config.MaxAgeDays == 0 {
		config.MaxAgeDays = DefaultMaxAgeDays
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	})
}
