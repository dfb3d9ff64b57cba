package llm

import "context"

// Static always returns the same text. Used for offline runs and tests.
type Static struct {
	Response string
}

func (p *Static) Name() string  { return "static" }
func (p *Static) Model() string { return "static" }

func (p *Static) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportError(err)
	}
	return p.Response, nil
}
