package imagegen

import (
	"context"
)

// GenerateRequest carries everything one upstream generation call needs.
// The API key comes from the credential the executor borrowed for this
// attempt, so every attempt may ride a different upstream account.
type GenerateRequest struct {
	// Prompt is the text description of the image.
	Prompt string

	// AspectRatio is the target aspect ratio ("1:1", "16:9", "9:16").
	AspectRatio string

	// Reference is an optional reference image steering the generation.
	Reference []byte

	// APIKey is the upstream credential key to call with.
	APIKey string
}

// Provider is the interface to the upstream image generation backend.
//
// Implementations return the generated image bytes or an error whose text
// is the upstream failure message. The retry machinery classifies failures
// by substring matching on that text (see classify.go), so implementations
// must pass upstream messages through rather than replacing them.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)
}
