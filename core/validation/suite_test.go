package validation

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"genforge/core"
)

func validConfig() *core.Config {
	return &core.Config{
		Credentials: []core.CredentialConfig{
			{APIKey: "key-1"},
			{APIKey: "key-2"},
		},
		MaxConcurrentPerAccount: 5,
		MaxRetries:              3,
		RetryBaseDelay:          5 * time.Second,
		AcquireTimeout:          60 * time.Second,
		ImageModel:              "dall-e-3",
		MaxImagesPerGeneration:  50,
		ArchiveCeiling:          50 * core.BytesPerMB,
		ArchiveMargin:           0.9,
		ServerHost:              "localhost",
		ServerPort:              3000,
		APITokenHash:            "$2a$12$fakehashfakehashfakehash",
	}
}

func runSilent(config *core.Config) SuiteResult {
	return NewSuite().WithShowProgress(false).Validate(config)
}

func TestValidate_AllPass(t *testing.T) {
	result := runSilent(validConfig())

	if !result.Success {
		t.Fatalf("Validate() failed: %s", result.Summary())
	}
	if result.Failed != 0 || result.Warnings != 0 {
		t.Errorf("result = %d failed, %d warnings, want 0, 0", result.Failed, result.Warnings)
	}
	if result.FirstError() != nil {
		t.Errorf("FirstError() = %v, want nil", result.FirstError())
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Config)
	}{
		{"no credentials", func(c *core.Config) { c.Credentials = nil }},
		{"empty api key", func(c *core.Config) { c.Credentials[1].APIKey = "" }},
		{"duplicate api key", func(c *core.Config) { c.Credentials[1].APIKey = "key-1" }},
		{"zero retries", func(c *core.Config) { c.MaxRetries = 0 }},
		{"negative base delay", func(c *core.Config) { c.RetryBaseDelay = -time.Second }},
		{"zero acquire timeout", func(c *core.Config) { c.AcquireTimeout = 0 }},
		{"zero ceiling", func(c *core.Config) { c.ArchiveCeiling = 0 }},
		{"margin above one", func(c *core.Config) { c.ArchiveMargin = 1.5 }},
		{"bad port", func(c *core.Config) { c.ServerPort = 99999 }},
		{"empty model", func(c *core.Config) { c.ImageModel = "" }},
		{"zero max images", func(c *core.Config) { c.MaxImagesPerGeneration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			result := runSilent(config)
			if result.Success {
				t.Error("Validate() should fail")
			}
			if result.FirstError() == nil {
				t.Error("FirstError() = nil, want an error")
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Config)
	}{
		{"single credential", func(c *core.Config) { c.Credentials = c.Credentials[:1] }},
		{"auth disabled", func(c *core.Config) { c.APITokenHash = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			result := runSilent(config)
			if !result.Success {
				t.Fatalf("Validate() failed: %s", result.Summary())
			}
			if result.Warnings != 1 {
				t.Errorf("Warnings = %d, want 1", result.Warnings)
			}
		})
	}
}

func TestValidate_ProgressOutput(t *testing.T) {
	var buf bytes.Buffer
	config := validConfig()
	config.Credentials = nil

	NewSuite().WithOutput(&buf).Validate(config)

	out := buf.String()
	for _, want := range []string{"Startup Validation", "Credentials", "Validation failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary_CountsRendered(t *testing.T) {
	config := validConfig()
	config.MaxRetries = 0
	config.APITokenHash = ""

	got := runSilent(config).Summary()
	for _, want := range []string{"Validation failed", "1 failed", "1 warnings"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
