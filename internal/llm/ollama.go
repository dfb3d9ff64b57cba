package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama uses the native Ollama chat API.
type Ollama struct {
	llm   *ollama.LLM
	model string
}

func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	return &Ollama{llm: client, model: model}, nil
}

func (p *Ollama) Name() string  { return "ollama" }
func (p *Ollama) Model() string { return p.model }

func (p *Ollama) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := p.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", transportError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", transportError(errors.New("no choices in ollama response"))
	}
	return resp.Choices[0].Content, nil
}
