package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to both console and a
// rotating log file.
//
// The file output always uses JSON encoding for structured log processing.
// The console output uses:
//   - Development mode (isDev=true): colored, human-readable format
//   - Production mode (isDev=false): JSON format for consistency
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) zapcore.Core {
	return NewMultiCoreWithWriters(level, zapcore.AddSync(os.Stdout), NewFileWriter(filePath), isDev)
}

// NewMultiCoreWithWriters creates a tee core over the provided writers.
// This variant exists for tests and special output destinations.
//
// Example:
//
//	var buf zaptest.Buffer
//	core := NewMultiCoreWithWriters(zapcore.DebugLevel, os.Stdout, &buf, true)
//	logger := zap.New(core)
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}

	consoleCore := zapcore.NewCore(
		consoleEncoder,
		consoleWriter,
		level,
	)

	return zapcore.NewTee(consoleCore, fileCore)
}
