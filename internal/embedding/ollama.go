package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaAdapter embeds text with a local Ollama server.
type OllamaAdapter struct {
	llm *ollama.LLM
}

func NewOllamaAdapter(baseURL, model string) (*OllamaAdapter, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}
	return &OllamaAdapter{llm: llm}, nil
}

func (a *OllamaAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrNoEmbedding
	}
	return vectors[0], nil
}
