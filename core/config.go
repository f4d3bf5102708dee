package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values for the generation engine.
const (
	// DefaultMaxConcurrentPerAccount is how many in-flight generation calls
	// a single upstream credential may carry at once.
	DefaultMaxConcurrentPerAccount = 5

	// DefaultMaxRetries is the per-job attempt budget.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the base backoff delay between attempts.
	// Attempt n sleeps baseDelay * (n+1): 5s, 10s, 15s.
	DefaultRetryBaseDelay = 5 * time.Second

	// DefaultAcquireTimeout is how long a job waits for a free credential
	// before the attempt is consumed.
	DefaultAcquireTimeout = 60 * time.Second

	// DefaultRateLimitCooldown is applied to a credential after a
	// rate-limited failure.
	DefaultRateLimitCooldown = 45 * time.Second

	// DefaultFailureCooldown is applied after too many consecutive failures.
	DefaultFailureCooldown = 30 * time.Second

	// DefaultFailureCooldownThreshold is the consecutive-failure count that
	// triggers DefaultFailureCooldown.
	DefaultFailureCooldownThreshold = 3

	// DefaultArchiveCeiling is the hard per-archive size limit for delivery.
	DefaultArchiveCeiling int64 = 50 * BytesPerMB

	// DefaultArchiveMargin is the fraction of the ceiling used as the
	// packing threshold, leaving headroom for container overhead.
	DefaultArchiveMargin = 0.9

	// DefaultMaxImagesPerGeneration caps a single batch request.
	DefaultMaxImagesPerGeneration = 50

	// DefaultAITimeout bounds a single upstream generation call.
	DefaultAITimeout = 120 * time.Second

	// DefaultServerPort is the port for the inbound HTTP API.
	DefaultServerPort = 3000
)

// CredentialConfig describes one upstream API account.
type CredentialConfig struct {
	// APIKey is the upstream API key. Required.
	APIKey string `yaml:"api_key"`

	// MaxConcurrent overrides the pool-wide per-account concurrency cap
	// for this credential. Zero means "use the pool default".
	MaxConcurrent int `yaml:"max_concurrent"`
}

// credentialsFile is the on-disk shape of the optional credentials YAML file.
type credentialsFile struct {
	Accounts []CredentialConfig `yaml:"accounts"`
}

// Config holds all runtime configuration for the generation engine.
// Values are loaded from environment variables (plus an optional YAML
// credentials file) by LoadConfig. Business logic never reads the
// environment directly.
type Config struct {
	// Credentials are the upstream accounts the pool balances across.
	Credentials []CredentialConfig

	// MaxConcurrentPerAccount is the default concurrency cap per credential.
	MaxConcurrentPerAccount int

	// MaxRetries is the per-job attempt budget.
	MaxRetries int

	// RetryBaseDelay is the base linear-backoff delay between attempts.
	RetryBaseDelay time.Duration

	// AcquireTimeout bounds a single wait for a free credential.
	AcquireTimeout time.Duration

	// AITimeout bounds one upstream generation call.
	AITimeout time.Duration

	// ImageModel is the upstream image model identifier.
	ImageModel string

	// ImageEndpoint overrides the upstream API base URL. Empty uses the
	// provider default.
	ImageEndpoint string

	// MaxImagesPerGeneration caps the job count of one batch request.
	MaxImagesPerGeneration int

	// ArchiveCeiling is the hard per-archive byte limit.
	ArchiveCeiling int64

	// ArchiveMargin is the fraction of ArchiveCeiling used as the packing
	// threshold (0 < margin <= 1).
	ArchiveMargin float64

	// ServerHost and ServerPort configure the inbound HTTP API.
	ServerHost string
	ServerPort int

	// APITokenHash is the bcrypt hash of the inbound API bearer token.
	// Empty disables authentication (development only).
	APITokenHash string

	// LogFilePath is where the JSON log file is written.
	LogFilePath string

	// DevMode switches console logging to human-readable debug output.
	DevMode bool
}

// maxEnvCredentials is how many GOOGLE_API_KEY_<n> slots are scanned.
const maxEnvCredentials = 10

// LoadConfig builds a Config from the environment and the optional
// credentials file named by CREDENTIALS_FILE.
//
// Credentials are collected from two sources, file entries first:
//  1. The YAML credentials file, if configured.
//  2. GOOGLE_API_KEY_1 .. GOOGLE_API_KEY_10 environment variables.
//
// Returns a ConfigError if no credential is configured or a value fails
// validation.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		MaxConcurrentPerAccount: ParseIntEnv("MAX_CONCURRENT_PER_ACCOUNT", DefaultMaxConcurrentPerAccount),
		MaxRetries:              ParseIntEnv("MAX_RETRIES", DefaultMaxRetries),
		RetryBaseDelay:          ParseDurationEnv("RETRY_BASE_DELAY_SECONDS", 5),
		AcquireTimeout:          ParseDurationEnv("ACQUIRE_TIMEOUT_SECONDS", 60),
		AITimeout:               ParseDurationEnv("AI_TIMEOUT_SECONDS", 120),
		ImageModel:              GetEnvOrDefault("IMAGE_MODEL", "dall-e-3"),
		ImageEndpoint:           os.Getenv("IMAGE_API_URL"),
		MaxImagesPerGeneration:  ParseIntEnv("MAX_IMAGES_PER_GENERATION", DefaultMaxImagesPerGeneration),
		ArchiveCeiling:          ParseByteSizeEnv("ARCHIVE_CEILING", DefaultArchiveCeiling),
		ArchiveMargin:           ParseFloat64Env("ARCHIVE_MARGIN", DefaultArchiveMargin),
		ServerHost:              GetEnvOrDefault("SERVER_HOST", "localhost"),
		ServerPort:              ParseIntEnv("SERVER_PORT", DefaultServerPort),
		APITokenHash:            os.Getenv("API_TOKEN_HASH"),
		LogFilePath:             GetEnvOrDefault("LOG_FILE", "genforge.log"),
		DevMode:                 ParseBoolEnv("DEV_MODE", false),
	}

	if path := os.Getenv("CREDENTIALS_FILE"); path != "" {
		creds, err := loadCredentialsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Credentials = append(cfg.Credentials, creds...)
	}

	for i := 1; i <= maxEnvCredentials; i++ {
		if key := os.Getenv(fmt.Sprintf("GOOGLE_API_KEY_%d", i)); key != "" {
			cfg.Credentials = append(cfg.Credentials, CredentialConfig{APIKey: key})
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCredentialsFile reads and parses a YAML credentials file.
func loadCredentialsFile(path string) ([]CredentialConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrCredentialsFileUnreadable(path, err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, ErrCredentialsFileInvalid(path, err)
	}

	for i, acc := range file.Accounts {
		if strings.TrimSpace(acc.APIKey) == "" {
			return nil, ErrCredentialsFileInvalid(path, fmt.Errorf("account %d has an empty api_key", i+1))
		}
	}
	return file.Accounts, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return ErrNoCredentials()
	}
	if c.MaxConcurrentPerAccount < 1 {
		return ErrInvalidConfigValue("MAX_CONCURRENT_PER_ACCOUNT", "must be at least 1")
	}
	if c.MaxRetries < 1 {
		return ErrInvalidConfigValue("MAX_RETRIES", "must be at least 1")
	}
	if c.ArchiveCeiling < BytesPerMB {
		return ErrInvalidConfigValue("ARCHIVE_CEILING", "must be at least 1MB")
	}
	if c.ArchiveMargin <= 0 || c.ArchiveMargin > 1 {
		return ErrInvalidConfigValue("ARCHIVE_MARGIN", "must be in (0, 1]")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidConfigValue("SERVER_PORT", "must be a valid TCP port")
	}
	return nil
}

// PackingThreshold returns the byte size at which the packager closes the
// current archive and starts a new one.
func (c *Config) PackingThreshold() int64 {
	return int64(float64(c.ArchiveCeiling) * c.ArchiveMargin)
}

// TotalCapacity returns the pool-wide concurrent call capacity implied by
// the configured credentials.
func (c *Config) TotalCapacity() int {
	total := 0
	for _, cred := range c.Credentials {
		capacity := cred.MaxConcurrent
		if capacity <= 0 {
			capacity = c.MaxConcurrentPerAccount
		}
		total += capacity
	}
	return total
}
