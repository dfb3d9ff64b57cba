package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// PrintAnswer renders an answer payload for a terminal.
func PrintAnswer(w io.Writer, p domain.AnswerPayload, traceID string) {
	fmt.Fprintln(w, p.Answer)
	fmt.Fprintf(w, "\nConfidence: %s\n", p.Confidence)

	if len(p.Citations) > 0 {
		fmt.Fprintln(w, "\nCitations:")
		for i, c := range p.Citations {
			loc := c.DocID
			if c.PageNumber != nil {
				loc = fmt.Sprintf("%s p.%d", loc, *c.PageNumber)
			}
			fmt.Fprintf(w, "  [%d] %s (%s, %s)\n", i+1, c.DocTitle, loc, c.DocumentVersion)
			fmt.Fprintf(w, "      %q\n", c.Quote)
			fmt.Fprintf(w, "      %s\n", c.SourceURI)
		}
	}

	if p.MissingInfo != nil {
		fmt.Fprintf(w, "\nMissing info: %s\n", *p.MissingInfo)
	}
	if len(p.SafeNextSteps) > 0 {
		fmt.Fprintln(w, "\nNext steps:")
		for _, s := range p.SafeNextSteps {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if traceID != "" {
		fmt.Fprintf(w, "\nTrace: %s\n", traceID)
	}
}

// ParseAttributes turns key=value pairs into a user attribute map. Repeated
// keys collect their values into a list.
func ParseAttributes(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q (expected key=value)", pair)
		}
		value = strings.TrimSpace(value)

		switch prev := attrs[key].(type) {
		case nil:
			attrs[key] = value
		case string:
			attrs[key] = []any{prev, value}
		case []any:
			attrs[key] = append(prev, value)
		}
	}
	return attrs, nil
}
