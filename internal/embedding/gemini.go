package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiAdapter embeds text with the Gemini API.
type GeminiAdapter struct {
	client     *genai.Client
	model      string
	dimensions int32
}

func NewGeminiAdapter(ctx context.Context, apiKey, model string, dimensions int) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiAdapter{client: client, model: model, dimensions: int32(dimensions)}, nil
}

func (a *GeminiAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{
		OutputDimensionality: &a.dimensions,
		TaskType:             "RETRIEVAL_QUERY",
	}
	result, err := a.client.Models.EmbedContent(ctx, a.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, ErrNoEmbedding
	}
	return result.Embeddings[0].Values, nil
}
