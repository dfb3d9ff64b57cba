package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8003/v1", normalizeBaseURL("http://localhost:8003"))
	assert.Equal(t, "http://localhost:8003/v1", normalizeBaseURL("http://localhost:8003/"))
	assert.Equal(t, "http://localhost:8003/v1", normalizeBaseURL("http://localhost:8003/v1"))
}

func TestOpenAICompatible_Generate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"llama3",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"answer\":\"ok\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible(srv.URL, "secret", "llama3")
	out, err := p.Generate(context.Background(), "system rules", "user question")

	require.NoError(t, err)
	assert.Equal(t, `{"answer":"ok"}`, out)
	assert.Equal(t, "llama3", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system rules", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user question", got.Messages[1].Content)
	assert.Equal(t, "openai_compatible", p.Name())
}

func TestOpenAICompatible_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(srv.URL, "", "llama3")
	_, err := p.Generate(context.Background(), "s", "u")

	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","created_at":"2024-01-01T00:00:00Z",
			"message":{"role":"assistant","content":"hello from ollama"},"done":true}`))
	}))
	defer srv.Close()

	p, err := NewOllama(srv.URL, "llama3")
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "hello from ollama", out)
}

func TestAnthropic_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	p := NewAnthropic("test-key", srv.URL, "claude-test")
	out, err := p.Generate(context.Background(), "system rules", "user question")

	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
	assert.Equal(t, "claude-test", got["model"])
	system, ok := got["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
}

func TestStatic_Generate(t *testing.T) {
	p := &Static{Response: "{}"}
	out, err := p.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, "s", "u")
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestNewFromConfig(t *testing.T) {
	p, err := NewFromConfig(context.Background(), Config{Provider: ProviderStatic, StaticResponse: "x"})
	require.NoError(t, err)
	assert.Equal(t, "static", p.Name())

	p, err = NewFromConfig(context.Background(), Config{Provider: ProviderOpenAICompatible, BaseURL: "http://localhost:1", Model: "m", MaxRetries: 1})
	require.NoError(t, err)
	assert.Equal(t, "openai_compatible", p.Name())
	assert.Equal(t, "m", p.Model())

	_, err = NewFromConfig(context.Background(), Config{Provider: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported llm provider")
}
