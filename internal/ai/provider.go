package ai

import (
	"context"
	"fmt"

	"github.com/invoyisi/resolution-service/internal/models"
)

// Provider is a model backend that can answer an extraction prompt, with an
// optional base64-encoded document image for vision-capable models.
type Provider interface {
	ExtractData(ctx context.Context, prompt string, imageBase64 string) (string, error)
	Name() string
}

// NewProvider builds the configured default provider.
func NewProvider(cfg models.AIConfig) (Provider, error) {
	switch cfg.DefaultProvider {
	case "", "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key configured")
		}
		return NewOpenAIProvider(cfg.OpenAI), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but no API key configured")
		}
		return NewGeminiProvider(cfg.Gemini), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.DefaultProvider)
	}
}
