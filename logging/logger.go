// Package logging provides structured logging for the generation engine.
//
// It wraps go.uber.org/zap with:
//   - a multi-core tee to console and a rotating JSON log file
//   - automatic redaction of upstream API keys and other secrets
//   - named sub-loggers per component (pool, dispatcher, packager, webapi)
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts sensitive data before every log
// operation. The engine juggles multiple upstream API keys; none of them
// may ever reach the log stream.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level

	// logFilePath is the path to the log file
	logFilePath string
}

// NewLogger creates a Logger for the given environment.
//
// Parameters:
//   - isDevelopment: when true, console output is colored and the level
//     defaults to debug; when false, both outputs are JSON at info level.
//   - logFilePath: path to the log file. Rotation is automatic
//     (100MB max, 5 backups, 30 days, compressed).
//
// The level can be overridden via the LOG_LEVEL environment variable.
func NewLogger(isDevelopment bool, logFilePath string) *Logger {
	defaultLevel := zapcore.InfoLevel
	if isDevelopment {
		defaultLevel = zapcore.DebugLevel
	}
	level := LevelFromEnv("LOG_LEVEL", defaultLevel)

	core := NewMultiCore(level, logFilePath, isDevelopment)

	return &Logger{
		zap:         zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level:       level,
		logFilePath: logFilePath,
	}
}

// NewLoggerWithCore creates a Logger over an explicit core.
// Used by tests to capture log output.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core), level: zapcore.DebugLevel}
}

// Sync flushes any buffered log entries. Call before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactZapFields(fields)...)
}

// Info logs a message at InfoLevel with optional structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactZapFields(fields)...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactZapFields(fields)...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactZapFields(fields)...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactZapFields(fields)...)
}

// With creates a child logger whose entries all carry the given fields.
//
// Example:
//
//	batchLogger := logger.With(zap.String("generation_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:         l.zap.With(redactZapFields(fields)...),
		level:       l.level,
		logFilePath: l.logFilePath,
	}
}

// Named adds a sub-logger name identifying the component emitting entries.
//
// Example:
//
//	poolLogger := logger.Named("pool")
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:         l.zap.Named(name),
		level:       l.level,
		logFilePath: l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger for methods not exposed here.
// Callers bypassing the wrapper lose automatic redaction.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Level returns the configured minimum log level.
func (l *Logger) Level() zapcore.Level {
	return l.level
}

// LogFilePath returns the path to the log file.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

// redactZapFields filters sensitive data from field values before they
// reach an encoder.
func redactZapFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactZapField(field)
	}
	return result
}

// redactZapField redacts a single zap.Field if it carries sensitive data.
func redactZapField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	if field.Type == zapcore.StringType {
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}

	return field
}
