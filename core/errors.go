package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeNoCredentials         = "NO_CREDENTIALS"
	ErrCodeCredentialsUnreadable = "CREDENTIALS_FILE_UNREADABLE"
	ErrCodeCredentialsInvalid    = "CREDENTIALS_FILE_INVALID"
	ErrCodeInvalidConfigValue    = "INVALID_CONFIG_VALUE"
	ErrCodeEnvFileMissing        = "ENV_FILE_MISSING"
)

// ErrNoCredentials returns an error for a configuration with no upstream accounts.
func ErrNoCredentials() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeNoCredentials,
		Message: "No upstream API credentials configured",
		Action:  "Set GOOGLE_API_KEY_1 (and optionally _2, _3, ...) or point CREDENTIALS_FILE at a credentials YAML file",
	}
}

// ErrCredentialsFileUnreadable returns an error when the credentials file cannot be read.
func ErrCredentialsFileUnreadable(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeCredentialsUnreadable,
		Message: fmt.Sprintf("Cannot read credentials file %s: %v", path, cause),
		Action:  "Check that CREDENTIALS_FILE points at a readable file",
	}
}

// ErrCredentialsFileInvalid returns an error when the credentials file fails to parse.
func ErrCredentialsFileInvalid(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeCredentialsInvalid,
		Message: fmt.Sprintf("Invalid credentials file %s: %v", path, cause),
		Action:  "The file must contain an 'accounts' list of {api_key, max_concurrent} entries",
	}
}

// ErrInvalidConfigValue returns an error for an out-of-range configuration value.
func ErrInvalidConfigValue(varName string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfigValue,
		Message: fmt.Sprintf("Invalid value for %s: %s", varName, reason),
		Action:  fmt.Sprintf("Fix %s in your environment or .env file", varName),
	}
}

// ErrEnvFileMissing returns an error for a missing .env file.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env and configure the required values",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so.
func IsConfigError(err error) (*ConfigError, bool) {
	if configErr, ok := err.(*ConfigError); ok {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
