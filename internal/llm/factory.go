package llm

import (
	"context"
	"fmt"
	"time"
)

const (
	ProviderOpenAICompatible = "openai_compatible"
	ProviderOllama           = "ollama"
	ProviderAnthropic        = "anthropic"
	ProviderGemini           = "gemini"
	ProviderStatic           = "static"
)

// Config selects and configures the generative backend.
type Config struct {
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     uint64
	RateLimit      float64
	StaticResponse string
}

// NewFromConfig builds the backend named by cfg.Provider wrapped with the
// timeout, rate limit and retry decorators.
func NewFromConfig(ctx context.Context, cfg Config) (Provider, error) {
	var (
		base Provider
		err  error
	)

	switch cfg.Provider {
	case ProviderOpenAICompatible:
		base = NewOpenAICompatible(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderOllama:
		base, err = NewOllama(cfg.BaseURL, cfg.Model)
	case ProviderAnthropic:
		base = NewAnthropic(cfg.APIKey, "", cfg.Model)
	case ProviderGemini:
		base, err = NewGemini(ctx, cfg.APIKey, cfg.Model)
	case ProviderStatic, "mock":
		return &Static{Response: cfg.StaticResponse}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	p := WithTimeout(base, cfg.Timeout)
	p = WithRateLimit(p, cfg.RateLimit)
	p = WithRetry(p, cfg.MaxRetries)
	return p, nil
}
