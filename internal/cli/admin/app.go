package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/config"
	"github.com/cloo-solutions/copilot/internal/database"
	"github.com/cloo-solutions/copilot/internal/embedding"
	"github.com/cloo-solutions/copilot/internal/llm"
	"github.com/cloo-solutions/copilot/internal/logging"
	"github.com/cloo-solutions/copilot/internal/repository"
	"github.com/cloo-solutions/copilot/internal/service"
)

// loadConfig reads the environment and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.Debug)
	return cfg, nil
}

func getDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// embeddingConfig maps the process config onto the embedding factory. The
// API key follows the selected provider.
func embeddingConfig(cfg *config.Config) embedding.Config {
	apiKey := cfg.OpenAIAPIKey
	if cfg.EmbeddingProvider == embedding.ProviderGemini {
		apiKey = cfg.GeminiAPIKey
	}
	return embedding.Config{
		Provider:    cfg.EmbeddingProvider,
		Model:       cfg.EmbeddingModel,
		Dimensions:  cfg.EmbeddingDimensions,
		BaseURL:     cfg.EmbeddingBaseURL,
		APIKey:      apiKey,
		QueryPrefix: cfg.EmbeddingQueryPrefix,
		MaxRetries:  cfg.LLMMaxRetries,
		Timeout:     cfg.EmbeddingTimeout,
	}
}

// llmConfig maps the process config onto the generator factory. LLM_API_KEY
// wins over the provider-specific key.
func llmConfig(cfg *config.Config) llm.Config {
	apiKey := cfg.LLMAPIKey
	if apiKey == "" {
		switch cfg.LLMProvider {
		case llm.ProviderAnthropic:
			apiKey = cfg.AnthropicAPIKey
		case llm.ProviderGemini:
			apiKey = cfg.GeminiAPIKey
		case llm.ProviderOpenAICompatible:
			apiKey = cfg.OpenAIAPIKey
		}
	}
	return llm.Config{
		Provider:       cfg.LLMProvider,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		APIKey:         apiKey,
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     cfg.LLMMaxRetries,
		RateLimit:      cfg.LLMRateLimit,
		StaticResponse: cfg.LLMStaticResponse,
	}
}

// newAnswerer wires the answering pipeline against pool. audit may be nil.
func newAnswerer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, audit service.AuditSink) (*service.Answerer, error) {
	generator, err := llm.NewFromConfig(ctx, llmConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}

	var counter service.TokenCounter
	if cfg.MaxPromptTokens > 0 {
		counter, err = service.NewTiktokenCounter(cfg.LLMModel)
		if err != nil {
			log.Warn().Err(err).Msg("token counter unavailable, prompt budget disabled")
		}
	}

	embedder := embedding.NewLazyFromConfig(embeddingConfig(cfg))

	answerer := service.NewAnswerer(service.AnswererDeps{
		Access:       service.NewAccessResolver(repository.NewAccessRepository(pool)),
		Retriever:    service.NewRetriever(embedder, repository.NewChunkRepository(pool), cfg.MaxTopK, cfg.QueryTimeout),
		Prompts:      service.NewPromptBuilder(cfg.HistoryTurns, cfg.MaxPromptTokens, counter),
		Generator:    generator,
		Guardrail:    service.NewGuardrail(service.CitationPolicy(cfg.CitationPolicy)),
		Audit:        audit,
		DefaultTopK:  cfg.DefaultTopK,
		QueryTimeout: cfg.QueryTimeout,
	})

	log.Info().
		Str("llm_provider", generator.Name()).
		Str("llm_model", generator.Model()).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Str("embedding_model", cfg.EmbeddingModel).
		Str("citation_policy", cfg.CitationPolicy).
		Msg("answer pipeline ready")
	return answerer, nil
}
