package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible talks to any chat-completions endpoint (OpenAI, vLLM,
// llama.cpp server, Ollama's /v1).
type OpenAICompatible struct {
	client *openai.Client
	model  string
}

// NewOpenAICompatible builds a client for baseURL. A missing /v1 suffix is
// added.
func NewOpenAICompatible(baseURL, apiKey, model string) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = normalizeBaseURL(baseURL)
	}
	return &OpenAICompatible{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func normalizeBaseURL(u string) string {
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

func (p *OpenAICompatible) Name() string  { return "openai_compatible" }
func (p *OpenAICompatible) Model() string { return p.model }

func (p *OpenAICompatible) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", transportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", transportError(errors.New("no choices in completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}
