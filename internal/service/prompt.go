package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/phuslu/log"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultHistoryTurns is how many prior turns reach the prompt.
const DefaultHistoryTurns = 6

// SystemPrompt fixes the model's role and the refusal sentence it must use.
var SystemPrompt = "You are the bank's Knowledge Copilot. Answer ONLY using the provided chunks. " +
	"If the chunks do not contain enough evidence, refuse with the exact message: " +
	"\"" + RefusalTextEN + "\" " +
	"(in Arabic: \"" + RefusalTextAR + "\"). " +
	"Do NOT use general knowledge. Do NOT fabricate policies, numbers, fees, or limits. " +
	"Return JSON that matches the response schema exactly. " +
	"Every non-refusal answer must include citations derived from the provided chunks only."

const schemaExample = `{
  "answer": "Your answer here based only on the chunks.",
  "citations": [
    {
      "doc_title": "<exact doc_title from chunk>",
      "doc_id": "<exact doc_id from chunk>",
      "document_version": "<exact document_version from chunk>",
      "page_number": <exact page_number from chunk>,
      "start_offset": <exact start_offset from chunk>,
      "end_offset": <exact end_offset from chunk>,
      "source_uri": "<exact source_uri from chunk>",
      "quote": "<exact snippet from chunk text, max 25 words>"
    }
  ]
}`

// TokenCounter measures prompt length in model tokens.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter returns a counter for model's encoding, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoding: %w", err)
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	Question  string
	Language  domain.Language
	RoleNames []string
	History   []domain.HistoryTurn
	Chunks    []domain.Chunk
}

// Prompt is the rendered system and user prompt plus the chunks it shows the
// model. Citations are only ever matched against Chunks.
type Prompt struct {
	System string
	User   string
	Chunks []domain.Chunk
}

// PromptBuilder renders prompts deterministically.
type PromptBuilder struct {
	historyTurns int
	maxTokens    int
	counter      TokenCounter
}

// NewPromptBuilder returns a builder keeping the last historyTurns turns.
// With maxTokens > 0 and a counter, trailing chunks are dropped until the
// user prompt fits; at least one chunk is always kept.
func NewPromptBuilder(historyTurns, maxTokens int, counter TokenCounter) *PromptBuilder {
	if historyTurns < 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &PromptBuilder{historyTurns: historyTurns, maxTokens: maxTokens, counter: counter}
}

func (b *PromptBuilder) Build(in PromptInput) Prompt {
	chunks := in.Chunks
	user := b.render(in, chunks)

	if b.maxTokens > 0 && b.counter != nil {
		for len(chunks) > 1 && b.counter.Count(user) > b.maxTokens {
			chunks = chunks[:len(chunks)-1]
			user = b.render(in, chunks)
		}
		if dropped := len(in.Chunks) - len(chunks); dropped > 0 {
			log.Debug().Int("dropped", dropped).Int("max_tokens", b.maxTokens).Msg("prompt trimmed to token budget")
		}
	}

	return Prompt{System: SystemPrompt, User: user, Chunks: chunks}
}

func (b *PromptBuilder) render(in PromptInput, chunks []domain.Chunk) string {
	roles := "none"
	if len(in.RoleNames) > 0 {
		roles = strings.Join(in.RoleNames, ", ")
	}

	var sb strings.Builder
	lines := []string{
		"You MUST answer using ONLY the chunks below.",
		"If the chunks are insufficient, return the refusal message exactly.",
		"Return ONLY valid JSON matching the EXACT schema below. No other fields allowed.",
		"Use the same language as the user for the answer.",
		"Each citation must use the EXACT values from the chunk metadata (doc_title, doc_id, document_version, page_number, start_offset, end_offset, source_uri).",
		"The quote must be an exact snippet from the chunk text, max 25 words, NOT translated.",
		"",
		"REQUIRED JSON SCHEMA:",
		schemaExample,
		"",
		"User language: " + string(in.Language),
		"User roles: " + roles,
	}
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}

	if history := lastTurns(in.History, b.historyTurns); len(history) > 0 {
		sb.WriteString("Conversation history (oldest first):\n")
		for _, turn := range history {
			sb.WriteString(string(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(turn.Text)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("User question: ")
	sb.WriteString(in.Question)
	sb.WriteString("\n\nRetrieved chunks:\n")

	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Chunk %d:\n", i+1)
		fmt.Fprintf(&sb, "chunk_id: %s\n", c.ID)
		fmt.Fprintf(&sb, "doc_title: %s\n", c.DocumentTitle)
		fmt.Fprintf(&sb, "doc_id: %s\n", c.DocumentID)
		fmt.Fprintf(&sb, "document_version: %s\n", c.DocumentVersion)
		fmt.Fprintf(&sb, "page_number: %s\n", formatOptionalInt(c.PageStart))
		fmt.Fprintf(&sb, "start_offset: %s\n", formatOptionalInt(c.OffsetStart))
		fmt.Fprintf(&sb, "end_offset: %s\n", formatOptionalInt(c.OffsetEnd))
		fmt.Fprintf(&sb, "source_uri: %s\n", c.SourceURI)
		sb.WriteString("text:\n")
		sb.WriteString(c.Text)
	}

	return sb.String()
}

func lastTurns(history []domain.HistoryTurn, n int) []domain.HistoryTurn {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return "null"
	}
	return strconv.Itoa(*v)
}
