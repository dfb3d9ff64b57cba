// Package llm provides the generative backends the answer pipeline talks to.
// Every backend returns raw model text; parsing is the caller's job.
package llm

import (
	"context"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// Provider generates one completion for a system and user prompt.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Model() string
}

// transportError folds any backend failure into the single generation
// failure kind.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrGenerationUnavailable.Message, err)
}
