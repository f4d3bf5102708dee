package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the value of an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseIntEnv parses an environment variable as an integer.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// ParseFloat64Env parses an environment variable as a float64.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseFloat64Env(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// ParseBoolEnv parses an environment variable as a boolean.
// Accepts case-insensitive "true", "1", "yes", "on" and their negations.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ParseDurationEnv parses an environment variable as a duration in seconds.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(ParseIntEnv(key, defaultSeconds)) * time.Second
}

// ParseByteSizeEnv parses an environment variable as a byte size.
// Accepts a plain integer (bytes) or an integer with a KB/MB/GB suffix,
// case-insensitive, e.g. "50MB". Returns the default value if the variable
// is not set or cannot be parsed.
func ParseByteSizeEnv(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	size, err := ParseByteSize(value)
	if err != nil {
		return defaultValue
	}
	return size
}

// ParseByteSize parses a human-readable byte size like "512", "64KB",
// "50MB" or "2GB". Units are binary (1024-based), matching FormatBytes.
func ParseByteSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = BytesPerGB
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = BytesPerMB
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = BytesPerKB
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}
