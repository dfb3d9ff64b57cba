package admin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/copilot/internal/config"
	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/embedding"
	"github.com/cloo-solutions/copilot/internal/llm"
	"github.com/cloo-solutions/copilot/internal/service"
)

type fakeAnswerer struct {
	got service.AnswerRequest
	err error
}

func (f *fakeAnswerer) Answer(_ context.Context, req service.AnswerRequest) (*service.AnswerResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.AnswerResult{Payload: service.RefusalPayload(domain.NormalizeLanguage(req.Language)), TraceID: "t-1"}, nil
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = answerToolName
	req.Params.Arguments = args
	return req
}

func TestHandleAnswer(t *testing.T) {
	fake := &fakeAnswerer{}
	base := service.AnswerRequest{User: service.AnswerUser{ID: "mcp", RoleNames: []string{"teller"}}}

	res, err := handleAnswer(fake, base)(context.Background(), callTool(map[string]any{
		"question":   "What is the limit?",
		"language":   "ar",
		"top_k":      float64(3),
		"role_names": []any{"admin"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, "What is the limit?", fake.got.Question)
	assert.Equal(t, "ar", fake.got.Language)
	require.NotNil(t, fake.got.TopK)
	assert.Equal(t, 3, *fake.got.TopK)
	assert.Equal(t, []string{"teller"}, fake.got.User.RoleNames, "roles come from the server flags only")

	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var payload domain.AnswerPayload
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	assert.Equal(t, service.RefusalTextAR, payload.Answer)
}

func TestHandleAnswer_Errors(t *testing.T) {
	res, err := handleAnswer(&fakeAnswerer{}, service.AnswerRequest{})(context.Background(), callTool(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	failing := &fakeAnswerer{err: domain.NewDomainError(domain.ErrCodeValidation, "language failed on 'oneof' tag")}
	res, err = handleAnswer(failing, service.AnswerRequest{})(context.Background(), callTool(map[string]any{"question": "q", "language": "fr"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestAnswerRequestFromFlags(t *testing.T) {
	cmd := AskCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--role", "teller", "-r", "ops", "--attr", "branch=riyadh", "--lang", "ar", "--top-k", "7"}))

	req, err := answerRequestFromFlags(cmd, "What is the limit?")
	require.NoError(t, err)
	assert.Equal(t, "What is the limit?", req.Question)
	assert.Equal(t, "ar", req.Language)
	assert.Equal(t, []string{"teller", "ops"}, req.User.RoleNames)
	assert.Equal(t, map[string]any{"branch": "riyadh"}, req.User.Attributes)
	assert.Equal(t, "cli", req.User.ID)
	require.NotNil(t, req.TopK)
	assert.Equal(t, 7, *req.TopK)

	noTopK := AskCmd()
	require.NoError(t, noTopK.ParseFlags([]string{"--role", "teller"}))
	req, err = answerRequestFromFlags(noTopK, "q")
	require.NoError(t, err)
	assert.Nil(t, req.TopK)

	badAttr := AskCmd()
	require.NoError(t, badAttr.ParseFlags([]string{"--attr", "oops"}))
	_, err = answerRequestFromFlags(badAttr, "q")
	assert.Error(t, err)
}

func TestProviderKeySelection(t *testing.T) {
	cfg := &config.Config{
		LLMProvider:       llm.ProviderAnthropic,
		AnthropicAPIKey:   "anthropic-key",
		OpenAIAPIKey:      "openai-key",
		GeminiAPIKey:      "gemini-key",
		EmbeddingProvider: embedding.ProviderGemini,
	}
	assert.Equal(t, "anthropic-key", llmConfig(cfg).APIKey)
	assert.Equal(t, "gemini-key", embeddingConfig(cfg).APIKey)

	cfg.LLMAPIKey = "explicit"
	assert.Equal(t, "explicit", llmConfig(cfg).APIKey)

	cfg.EmbeddingProvider = embedding.ProviderOpenAI
	assert.Equal(t, "openai-key", embeddingConfig(cfg).APIKey)
}

func TestFormatRoles(t *testing.T) {
	assert.Equal(t, "no roles", formatRoles(nil))
	assert.Equal(t, "admin, auditor", formatRoles([]string{"admin", "auditor"}))
}
