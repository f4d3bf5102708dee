// Package validation runs the startup checks: credential presence and
// sanity, retry settings, packaging limits, and the server surface. It
// prints colored progress to the console and reports a machine-readable
// result for main to act on.
package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"genforge/core"
)

// StepStatus is the outcome of one check.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
)

// String returns the lowercase name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Step is one completed check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult aggregates a full validation run.
type SuiteResult struct {
	Steps    []Step
	Passed   int
	Failed   int
	Warnings int
	Duration time.Duration
	Success  bool
}

// FirstError returns the first failing step's error, or nil.
func (r SuiteResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line human-readable result.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation passed: ")
	} else {
		sb.WriteString("Validation failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.Passed, len(r.Steps))
	if r.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.Failed)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}

// Suite runs the startup checks against a loaded config.
type Suite struct {
	output       io.Writer
	showProgress bool
}

// NewSuite creates a Suite printing progress to stdout.
func NewSuite() *Suite {
	return &Suite{output: os.Stdout, showProgress: true}
}

// WithOutput redirects progress output.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables or disables console output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// checkFunc returns the step status, a short message, and an error for
// failed steps.
type checkFunc func() (StepStatus, string, error)

// Validate runs every check and returns the aggregate result. Warnings do
// not fail the suite.
func (s *Suite) Validate(config *core.Config) SuiteResult {
	start := time.Now()

	if s.showProgress {
		s.printHeader("Startup Validation")
	}

	steps := []Step{
		s.runStep("Credentials", func() (StepStatus, string, error) {
			return checkCredentials(config)
		}),
		s.runStep("Retry Settings", func() (StepStatus, string, error) {
			return checkRetrySettings(config)
		}),
		s.runStep("Packaging Limits", func() (StepStatus, string, error) {
			return checkPackaging(config)
		}),
		s.runStep("Server", func() (StepStatus, string, error) {
			return checkServer(config)
		}),
		s.runStep("Image Settings", func() (StepStatus, string, error) {
			return checkImageSettings(config)
		}),
	}

	result := SuiteResult{Steps: steps, Duration: time.Since(start), Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.Passed++
		case StepFailed:
			result.Failed++
			result.Success = false
		case StepWarning:
			result.Warnings++
			result.Passed++
		}
	}

	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func checkCredentials(config *core.Config) (StepStatus, string, error) {
	if len(config.Credentials) == 0 {
		return StepFailed, "", core.ErrNoCredentials()
	}

	seen := make(map[string]int, len(config.Credentials))
	for i, cred := range config.Credentials {
		if cred.APIKey == "" {
			return StepFailed, "", fmt.Errorf("credential %d has an empty API key", i+1)
		}
		if prev, dup := seen[cred.APIKey]; dup {
			return StepFailed, "", fmt.Errorf("credentials %d and %d share the same API key", prev+1, i+1)
		}
		seen[cred.APIKey] = i
	}

	if len(config.Credentials) == 1 {
		return StepWarning, "only one credential, no failover", nil
	}
	return StepPassed, fmt.Sprintf("%d credentials", len(config.Credentials)), nil
}

func checkRetrySettings(config *core.Config) (StepStatus, string, error) {
	if config.MaxRetries < 1 {
		return StepFailed, "", fmt.Errorf("MAX_RETRIES must be at least 1, got %d", config.MaxRetries)
	}
	if config.RetryBaseDelay <= 0 {
		return StepFailed, "", fmt.Errorf("RETRY_BASE_DELAY must be positive, got %v", config.RetryBaseDelay)
	}
	if config.AcquireTimeout <= 0 {
		return StepFailed, "", fmt.Errorf("ACQUIRE_TIMEOUT must be positive, got %v", config.AcquireTimeout)
	}
	return StepPassed, fmt.Sprintf("%d attempts, %v base delay", config.MaxRetries, config.RetryBaseDelay), nil
}

func checkPackaging(config *core.Config) (StepStatus, string, error) {
	if config.ArchiveCeiling <= 0 {
		return StepFailed, "", fmt.Errorf("ARCHIVE_CEILING must be positive, got %d", config.ArchiveCeiling)
	}
	if config.ArchiveMargin <= 0 || config.ArchiveMargin > 1 {
		return StepFailed, "", fmt.Errorf("ARCHIVE_MARGIN must be in (0, 1], got %v", config.ArchiveMargin)
	}
	return StepPassed, fmt.Sprintf("threshold %s", core.FormatBytes(config.PackingThreshold())), nil
}

func checkServer(config *core.Config) (StepStatus, string, error) {
	if config.ServerPort < 1 || config.ServerPort > 65535 {
		return StepFailed, "", fmt.Errorf("SERVER_PORT must be 1-65535, got %d", config.ServerPort)
	}
	if config.APITokenHash == "" {
		return StepWarning, "API_TOKEN_HASH not set, auth disabled", nil
	}
	return StepPassed, fmt.Sprintf("%s:%d", config.ServerHost, config.ServerPort), nil
}

func checkImageSettings(config *core.Config) (StepStatus, string, error) {
	if config.ImageModel == "" {
		return StepFailed, "", fmt.Errorf("IMAGE_MODEL cannot be empty")
	}
	if config.MaxImagesPerGeneration < 1 {
		return StepFailed, "", fmt.Errorf("MAX_IMAGES_PER_GENERATION must be at least 1, got %d", config.MaxImagesPerGeneration)
	}
	return StepPassed, fmt.Sprintf("%s, up to %d images per batch", config.ImageModel, config.MaxImagesPerGeneration), nil
}

// runStep executes one check with timing and progress output.
func (s *Suite) runStep(name string, fn checkFunc) Step {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}

	start := time.Now()
	status, message, err := fn()
	step := Step{
		Name:    name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(start),
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *Suite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "=== %s ===\n", title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	default:
		icon = "✗"
		clr = color.New(color.FgRed)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)
	if result.Success {
		color.New(color.FgGreen, color.Bold).Fprintf(s.output, "%s\n", result.Summary())
	} else {
		color.New(color.FgRed, color.Bold).Fprintf(s.output, "%s\n", result.Summary())
	}
	fmt.Fprintln(s.output)
}
