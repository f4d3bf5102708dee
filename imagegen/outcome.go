// Package imagegen implements the concurrent, load-balanced image
// generation engine: a retrying per-job executor, a batch dispatcher that
// fans jobs out across the credential pool, and the provider abstraction
// for the upstream generation backend.
package imagegen

import (
	"time"
)

// Job is one unit of generation work. The index is the job's permanent
// identity through the whole pipeline; a Job is immutable once created.
type Job struct {
	// Index is the job's position in the original prompt list (0-based).
	Index int

	// Prompt is the text prompt for this image.
	Prompt string

	// Reference is an optional reference image shared by the batch.
	Reference []byte

	// AspectRatio is the target aspect ratio ("" means the default 1:1).
	AspectRatio string
}

// ErrorKind classifies a generation failure for the retry decision.
type ErrorKind int

const (
	// ErrorKindNone means no failure occurred.
	ErrorKindNone ErrorKind = iota

	// ErrorKindNoAvailableAccount means the credential pool was exhausted
	// within the acquire timeout. Retryable.
	ErrorKindNoAvailableAccount

	// ErrorKindRateLimited means the upstream rejected the call for rate
	// reasons. Retryable; the credential enters cooldown.
	ErrorKindRateLimited

	// ErrorKindPolicyRejection means the upstream refused the prompt
	// (safety, blocked, invalid). Terminal; retrying cannot help.
	ErrorKindPolicyRejection

	// ErrorKindNoPayload means the upstream responded without image data.
	// Retryable.
	ErrorKindNoPayload

	// ErrorKindUpstream covers transport and other runtime failures.
	// Retryable.
	ErrorKindUpstream

	// ErrorKindCancelled means the batch context was cancelled while the
	// job was still in flight. Terminal.
	ErrorKindCancelled
)

// String returns the snake_case name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindNoAvailableAccount:
		return "no_available_account"
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindPolicyRejection:
		return "policy_rejection"
	case ErrorKindNoPayload:
		return "no_payload"
	case ErrorKindUpstream:
		return "upstream_error"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNoAvailableAccount, ErrorKindRateLimited, ErrorKindNoPayload, ErrorKindUpstream:
		return true
	default:
		return false
	}
}

// GenerationOutcome is the terminal result of one job. Exactly one outcome
// is produced per job.
type GenerationOutcome struct {
	// Index is the originating job's index.
	Index int

	// Success reports whether Payload holds a generated image.
	Success bool

	// Payload is the generated image bytes (nil on failure).
	Payload []byte

	// Kind classifies the failure (ErrorKindNone on success).
	Kind ErrorKind

	// Error is the upstream failure text (empty on success).
	Error string

	// Elapsed is the wall time the job spent from first attempt to the
	// terminal outcome.
	Elapsed time.Duration

	// Prompt is the originating prompt, kept for the delivery summary.
	Prompt string
}

// BatchResult is the order-restored summary of a dispatched batch.
//
// Invariant: len(Successes)+len(Failures) equals the number of input jobs,
// every input index appears exactly once across the two lists, and each
// list is sorted ascending by index.
type BatchResult struct {
	Successes    []GenerationOutcome
	Failures     []GenerationOutcome
	TotalElapsed time.Duration
	PromptsUsed  []string
}

// TotalJobs returns the number of jobs the batch carried.
func (r *BatchResult) TotalJobs() int {
	return len(r.Successes) + len(r.Failures)
}
