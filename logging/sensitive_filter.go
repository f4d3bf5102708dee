package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data.
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns contains compiled regex patterns for detecting sensitive
// data. The engine handles several upstream API keys at once, so key material
// leaking into logs is the main hazard this filter guards against.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(AIza[a-zA-Z0-9_-]{35})`),        // Google API keys
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),        // OpenAI keys (sk-..., sk-proj-...)
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`), // Bearer tokens

	// Generic secret assignments
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldNames are field/env-var name fragments that indicate
// sensitive values regardless of content.
var sensitiveFieldNames = []string{
	"GOOGLE_API_KEY",
	"API_TOKEN",
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"APIKEY",
	"CREDENTIAL",
}

// RedactSensitiveData scans a string and redacts any detected sensitive data.
// This is a pure function.
//
// Example:
//
//	RedactSensitiveData("key AIzaSyB...") // "key [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts a field value if the field name indicates sensitive
// data, and otherwise scans the value itself for sensitive patterns.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField returns true if the field name indicates sensitive data.
// Only the name is checked, not the value.
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)

	for _, fragment := range sensitiveFieldNames {
		if strings.Contains(upperName, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value matches any sensitive
// data pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
