package imagegen

import (
	"strings"
)

// The upstream backend reports failures as plain text; there is no
// structured error taxonomy to rely on. Classification is therefore a
// deliberately loose substring heuristic and must stay that way unless the
// backend contract changes.

// policyMarkers are substrings that mark a prompt-level rejection.
// Retrying an identical prompt cannot succeed, so these are terminal.
var policyMarkers = []string{"safety", "blocked", "invalid"}

// noPayloadMarkers are substrings that mark a response without image data.
var noPayloadMarkers = []string{"no image", "returned text"}

// IsRateLimited reports whether a failure text indicates upstream rate
// limiting: a case-insensitive "rate" substring or an HTTP 429 mention.
func IsRateLimited(errText string) bool {
	if errText == "" {
		return false
	}
	lower := strings.ToLower(errText)
	return strings.Contains(lower, "rate") || strings.Contains(errText, "429")
}

// IsPolicyRejection reports whether a failure text indicates a terminal
// prompt rejection.
func IsPolicyRejection(errText string) bool {
	lower := strings.ToLower(errText)
	for _, marker := range policyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ClassifyFailure maps a failure text to an ErrorKind.
// Policy rejection wins over rate limiting: a blocked prompt must never
// be retried even if the message also mentions rates.
func ClassifyFailure(errText string) ErrorKind {
	if errText == "" {
		return ErrorKindNone
	}
	if IsPolicyRejection(errText) {
		return ErrorKindPolicyRejection
	}
	if IsRateLimited(errText) {
		return ErrorKindRateLimited
	}

	lower := strings.ToLower(errText)
	for _, marker := range noPayloadMarkers {
		if strings.Contains(lower, marker) {
			return ErrorKindNoPayload
		}
	}
	return ErrorKindUpstream
}
