package caption

import (
	"context"
	"fmt"

	"github.com/maraichr/pictor/internal/config"
)

// Result is what the analyzer produces for one image.
type Result struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Captioner is the interface for image captioning providers. Calls are slow
// relative to the rest of the upload pipeline and may fail; callers convert
// failures into per-unit errors.
type Captioner interface {
	Caption(ctx context.Context, imageURL, styleHint string) (*Result, error)
	ModelID() string
}

// NewCaptioner auto-selects provider: OpenRouter (if API key set) > Bedrock
// (if region set) > nil.
func NewCaptioner(cfg *config.Config) (Captioner, error) {
	if cfg.OpenRouter.APIKey != "" {
		client, err := NewOpenRouterClient(cfg.OpenRouter)
		if err != nil {
			return nil, fmt.Errorf("openrouter client: %w", err)
		}
		return client, nil
	}

	if cfg.Bedrock.Region != "" {
		client, err := NewBedrockClient(cfg.Bedrock)
		if err != nil {
			return nil, fmt.Errorf("bedrock client: %w", err)
		}
		return client, nil
	}

	return nil, nil
}
