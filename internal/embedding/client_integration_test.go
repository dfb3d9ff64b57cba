//go:build integration

package embedding

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	lazy := NewLazyFromConfig(Config{
		Provider:   ProviderOpenAI,
		Model:      "text-embedding-3-small",
		Dimensions: DefaultEmbeddingDimensions,
		APIKey:     apiKey,
	})

	embedding, err := lazy.GenerateEmbedding(context.Background(), "What is the annual credit card fee?")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}
