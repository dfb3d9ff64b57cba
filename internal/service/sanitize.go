package service

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reasoningBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	}
	reasoningOpen  = regexp.MustCompile(`(?i)<think(ing)?>`)
	reasoningClose = regexp.MustCompile(`(?i)</think(ing)?>`)
)

const fence = "```"

// SanitizeResponse strips reasoning traces and a wrapping code fence from raw
// model output. Text without either wrapper is returned unchanged. Reasoning
// markers inside the JSON payload are payload content and are kept.
func SanitizeResponse(raw string) string {
	text, stripped := stripReasoning(raw)
	if inner, ok := unwrapFence(strings.TrimSpace(text)); ok {
		return inner
	}
	if stripped {
		return strings.TrimSpace(text)
	}
	return raw
}

// payloadStart is the index of the first JSON delimiter, or -1.
func payloadStart(text string) int {
	return strings.IndexAny(text, "{[")
}

func stripReasoning(text string) (string, bool) {
	stripped := false

	// A closing tag with no opening tag and no payload before it means the
	// opening tag was part of the prompt template; everything up to it is
	// reasoning.
	if loc := reasoningClose.FindStringIndex(text); loc != nil {
		open := reasoningOpen.FindStringIndex(text)
		if (open == nil || open[0] > loc[0]) && !strings.ContainsAny(text[:loc[0]], "{[") {
			text = text[loc[1]:]
			stripped = true
		}
	}

	// Paired blocks are removed only while they open ahead of the payload.
	for {
		loc := firstReasoningBlock(text)
		if loc == nil {
			break
		}
		if start := payloadStart(text); start >= 0 && start < loc[0] {
			break
		}
		text = text[:loc[0]] + text[loc[1]:]
		stripped = true
	}
	return text, stripped
}

func firstReasoningBlock(text string) []int {
	var first []int
	for _, re := range reasoningBlocks {
		if loc := re.FindStringIndex(text); loc != nil && (first == nil || loc[0] < first[0]) {
			first = loc
		}
	}
	return first
}

// unwrapFence returns the body of a fenced block that spans all of text,
// dropping the info string (for example "json") ahead of the content.
func unwrapFence(text string) (string, bool) {
	if len(text) < 2*len(fence) || !strings.HasPrefix(text, fence) || !strings.HasSuffix(text, fence) {
		return "", false
	}
	body := strings.TrimSpace(text[len(fence) : len(text)-len(fence)])

	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isInfoString(body[:nl]) {
		return strings.TrimSpace(body[nl+1:]), true
	}
	if i := payloadStart(body); i > 0 && isInfoString(body[:i]) {
		return body[i:], true
	}
	return body, true
}

func isInfoString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-+_.", r) {
			return false
		}
	}
	return true
}
