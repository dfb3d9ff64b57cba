package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIAdapter_CreateEmbeddings(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
			"model": "text-embedding-3-small",
		})
	}))
	defer srv.Close()

	adapter := NewOpenAIAdapter("sk-test", srv.URL, "text-embedding-3-small", 3)
	vec, err := adapter.CreateEmbeddings(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-3-small", gotBody["model"])
	assert.EqualValues(t, 3, gotBody["dimensions"])
}

func TestOpenAIAdapter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewOpenAIAdapter("sk-test", srv.URL, "", 3)
	_, err := adapter.CreateEmbeddings(context.Background(), "hello")

	assert.Error(t, err)
}

func TestNewAPI_UnknownProvider(t *testing.T) {
	_, err := NewAPI(context.Background(), Config{Provider: "word2vec"})
	assert.ErrorContains(t, err, "unknown embedding provider")
}
