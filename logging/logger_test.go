package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newCapturedLogger returns a Logger writing JSON entries into buf.
func newCapturedLogger(buf *bytes.Buffer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	return NewLoggerWithCore(core)
}

func TestLogger_RedactsSensitiveFieldByName(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturedLogger(&buf)

	logger.Info("acquired credential", zap.String("api_key", "AIzaSyB1234567890abcdefghijklmnopqrstuvw"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["api_key"] != RedactedPlaceholder {
		t.Errorf("api_key field = %v, want %q", entry["api_key"], RedactedPlaceholder)
	}
}

func TestLogger_RedactsSensitiveValueInBenignField(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturedLogger(&buf)

	logger.Error("upstream failure", zap.String("detail", "401 for key AIzaSyB1234567890abcdefghijklmnopqrstuvw"))

	out := buf.String()
	if strings.Contains(out, "AIzaSyB1234567890") {
		t.Errorf("log output leaked API key: %s", out)
	}
	if !strings.Contains(out, RedactedPlaceholder) {
		t.Errorf("log output missing redaction placeholder: %s", out)
	}
}

func TestLogger_WithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturedLogger(&buf).With(zap.String("generation_id", "batch-1"))

	logger.Info("dispatching")

	if !strings.Contains(buf.String(), "batch-1") {
		t.Errorf("child logger entry missing inherited field: %s", buf.String())
	}
}

func TestLogger_NamedAppearsInOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturedLogger(&buf).Named("pool")

	logger.Info("credential released")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry[FieldSource] != "pool" {
		t.Errorf("logger name = %v, want %q", entry[FieldSource], "pool")
	}
}

func TestLogger_SyncNilSafe(t *testing.T) {
	var l *Logger
	if err := l.Sync(); err != nil {
		t.Errorf("nil Logger Sync() = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"Warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input, zapcore.InfoLevel); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
