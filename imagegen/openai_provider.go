package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against the OpenAI images API.
//
// Unlike a single-account client, the provider builds a fresh API client
// per call: the executor hands it a different credential key on each
// attempt, and client construction is cheap next to a generation call.
//
// Thread safety: the provider holds no mutable state and is safe for
// concurrent use.
type OpenAIProvider struct {
	config     OpenAIProviderConfig
	httpClient *http.Client
}

// OpenAIProviderConfig holds provider-specific settings.
type OpenAIProviderConfig struct {
	// BaseURL is the API endpoint (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the image model to use (default: dall-e-3).
	Model string

	// Timeout bounds one generation call end to end.
	Timeout time.Duration

	// TempDir is where reference images are staged for the edit endpoint.
	// Empty uses the system temp directory.
	TempDir string
}

// DefaultOpenAIProviderConfig returns sensible defaults for image generation.
func DefaultOpenAIProviderConfig() OpenAIProviderConfig {
	return OpenAIProviderConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
	}
}

// NewOpenAIProvider creates a provider with the given configuration.
// Zero-value fields fall back to defaults.
func NewOpenAIProvider(config OpenAIProviderConfig) *OpenAIProvider {
	defaults := DefaultOpenAIProviderConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &OpenAIProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Generate creates one image. With a reference image present it uses the
// edit endpoint; otherwise the plain generation endpoint.
//
// The returned error text is the upstream message, passed through for the
// substring classification in classify.go.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) ([]byte, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("imagegen: prompt cannot be empty")
	}
	if req.APIKey == "" {
		return nil, fmt.Errorf("imagegen: API key cannot be empty")
	}

	client := p.newClient(req.APIKey)

	if len(req.Reference) > 0 {
		return p.generateWithReference(ctx, client, req)
	}
	return p.generate(ctx, client, req)
}

// newClient builds an API client bound to one credential key.
func (p *OpenAIProvider) newClient(apiKey string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = p.config.BaseURL
	clientConfig.HTTPClient = p.httpClient
	return openai.NewClientWithConfig(clientConfig)
}

// generate calls the plain image generation endpoint.
func (p *OpenAIProvider) generate(ctx context.Context, client *openai.Client, req GenerateRequest) ([]byte, error) {
	request := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          p.config.Model,
		N:              1,
		Size:           sizeForAspectRatio(req.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	response, err := client.CreateImage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	return decodeImageResponse(response)
}

// generateWithReference stages the reference image in a temp file and calls
// the edit endpoint. The upstream client only accepts files, not readers.
func (p *OpenAIProvider) generateWithReference(ctx context.Context, client *openai.Client, req GenerateRequest) ([]byte, error) {
	refFile, err := os.CreateTemp(p.config.TempDir, "genforge-ref-*.png")
	if err != nil {
		return nil, fmt.Errorf("staging reference image: %w", err)
	}
	defer func() {
		refFile.Close()
		os.Remove(refFile.Name())
	}()

	if _, err := refFile.Write(req.Reference); err != nil {
		return nil, fmt.Errorf("staging reference image: %w", err)
	}
	if _, err := refFile.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("staging reference image: %w", err)
	}

	request := openai.ImageEditRequest{
		Image:          refFile,
		Prompt:         req.Prompt,
		Model:          p.config.Model,
		N:              1,
		Size:           sizeForAspectRatio(req.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	response, err := client.CreateEditImage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("image edit failed: %w", err)
	}
	return decodeImageResponse(response)
}

// decodeImageResponse validates a response and decodes the image payload.
func decodeImageResponse(response openai.ImageResponse) ([]byte, error) {
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no image data in response")
	}
	if response.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image data in response: empty payload")
	}

	payload, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}
	return payload, nil
}

// Ensure OpenAIProvider implements Provider at compile time.
var _ Provider = (*OpenAIProvider)(nil)
