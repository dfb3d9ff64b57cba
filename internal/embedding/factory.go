package embedding

import (
	"context"
	"fmt"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider    string
	Model       string
	Dimensions  int
	BaseURL     string
	APIKey      string
	QueryPrefix string
	MaxRetries  uint64
	Timeout     time.Duration
}

// NewAPI builds the backend named by cfg.Provider.
func NewAPI(ctx context.Context, cfg Config) (EmbeddingAPI, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllamaAdapter(cfg.BaseURL, cfg.Model)
	case ProviderGemini:
		return NewGeminiAdapter(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewLazyFromConfig returns a lazily constructed client for cfg.
func NewLazyFromConfig(cfg Config) *Lazy {
	return NewLazy(cfg.Model, func(ctx context.Context) (*Client, error) {
		api, err := NewAPI(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewClient(api, ClientConfig{
			Model:       cfg.Model,
			Dimensions:  cfg.Dimensions,
			QueryPrefix: cfg.QueryPrefix,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
		}), nil
	})
}
