package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// CitationPolicy decides what happens to a citation that matches no
// retrieved chunk.
type CitationPolicy string

const (
	// CitationPolicyStrict refuses the whole answer.
	CitationPolicyStrict CitationPolicy = "strict"
	// CitationPolicyLenient drops the citation and refuses only when none
	// remain.
	CitationPolicyLenient CitationPolicy = "lenient"
)

// MaxQuoteWords caps citation quotes.
const MaxQuoteWords = 25

// GuardrailState is a step of answer validation.
type GuardrailState string

const (
	StateStart               GuardrailState = "start"
	StateParsed              GuardrailState = "parsed"
	StateShapeChecked        GuardrailState = "shape_checked"
	StateCitationsExtracted  GuardrailState = "citations_extracted"
	StateCitationsNormalized GuardrailState = "citations_normalized"
	StateConfidenceComputed  GuardrailState = "confidence_computed"
	StateRefusalDetected     GuardrailState = "refusal_detected"
	StateAccepted            GuardrailState = "accepted"
	StateRefused             GuardrailState = "refused"
)

// GuardrailOutcome is the terminal result of validating one model response.
// When State is StateAccepted, Payload is ready for the schema gate; for any
// other state Err says why the answer was refused and FailedAt says where.
type GuardrailOutcome struct {
	State    GuardrailState
	FailedAt GuardrailState
	Err      error
	Payload  domain.AnswerPayload
	// Matched holds the distinct chunks behind the accepted citations.
	Matched []domain.Chunk
	// Dropped counts citations discarded under the lenient policy.
	Dropped int
}

// Accepted reports whether the response passed validation.
func (o GuardrailOutcome) Accepted() bool {
	return o.State == StateAccepted
}

// Guardrail validates untrusted model output against the chunks the model
// was shown.
type Guardrail struct {
	policy CitationPolicy
}

func NewGuardrail(policy CitationPolicy) *Guardrail {
	if policy != CitationPolicyLenient {
		policy = CitationPolicyStrict
	}
	return &Guardrail{policy: policy}
}

func (g *Guardrail) Policy() CitationPolicy {
	return g.policy
}

type modelCitation struct {
	docID string
	page  *int
	quote string
}

// Validate runs the state machine over sanitized model text.
func (g *Guardrail) Validate(text string, chunks []domain.Chunk, lang domain.Language) GuardrailOutcome {
	lang = domain.NormalizeLanguage(string(lang))

	var (
		fields    map[string]json.RawMessage
		answer    string
		rawCites  []json.RawMessage
		citations []domain.Citation
		matched   []domain.Chunk
		dropped   int
		conf      domain.Confidence
	)

	refuse := func(at GuardrailState, err error) GuardrailOutcome {
		return GuardrailOutcome{State: StateRefused, FailedAt: at, Err: err, Dropped: dropped}
	}

	state := StateStart
	for {
		switch state {
		case StateStart:
			if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
				return refuse(state, domain.ErrOutputNotJSON)
			}
			state = StateParsed

		case StateParsed:
			var ok bool
			answer, ok = stringField(fields, "answer")
			if !ok {
				return refuse(state, domain.ErrOutputBadShape)
			}
			answer = strings.TrimSpace(answer)
			if IsRefusalText(answer) {
				state = StateRefusalDetected
				continue
			}
			state = StateShapeChecked

		case StateRefusalDetected:
			return GuardrailOutcome{State: StateRefusalDetected, FailedAt: StateRefusalDetected, Err: domain.ErrOutputRefused}

		case StateShapeChecked:
			raw, ok := fields["citations"]
			if !ok || json.Unmarshal(raw, &rawCites) != nil || len(rawCites) == 0 {
				return refuse(state, domain.ErrOutputNoCitations)
			}
			state = StateCitationsExtracted

		case StateCitationsExtracted:
			var err error
			citations, matched, dropped, err = g.normalize(rawCites, chunks)
			if err != nil {
				return refuse(state, err)
			}
			state = StateCitationsNormalized

		case StateCitationsNormalized:
			if answer == "" {
				return refuse(state, domain.ErrOutputEmptyAnswer)
			}
			conf = ScoreConfidence(len(citations), AverageSimilarity(matched))
			state = StateConfidenceComputed

		case StateConfidenceComputed:
			return GuardrailOutcome{
				State: StateAccepted,
				Payload: domain.AnswerPayload{
					Language:      lang,
					Answer:        answer,
					Confidence:    conf,
					Citations:     citations,
					MissingInfo:   MissingInfo(conf, lang),
					SafeNextSteps: SafeNextSteps(lang),
				},
				Matched: matched,
				Dropped: dropped,
			}

		default:
			return refuse(state, domain.ErrOutputBadShape)
		}
	}
}

// normalize matches every model citation to a chunk, rebuilds it from the
// chunk's metadata and removes duplicates by (doc_id, page).
func (g *Guardrail) normalize(raw []json.RawMessage, chunks []domain.Chunk) ([]domain.Citation, []domain.Chunk, int, error) {
	type dedupKey struct {
		docID string
		page  int
		has   bool
	}

	var (
		citations []domain.Citation
		matched   []domain.Chunk
		dropped   int
	)
	seenKeys := make(map[dedupKey]struct{})
	seenChunks := make(map[string]struct{})

	for _, r := range raw {
		mc, err := parseModelCitation(r)
		var chunk *domain.Chunk
		if err == nil {
			chunk = matchChunk(mc, chunks)
		}
		if chunk == nil {
			if g.policy == CitationPolicyStrict {
				if err != nil {
					return nil, nil, 0, err
				}
				return nil, nil, 0, domain.ErrOutputUnmatchedCite
			}
			dropped++
			continue
		}

		key := dedupKey{docID: chunk.DocumentID}
		if chunk.PageStart != nil {
			key.page, key.has = *chunk.PageStart, true
		}
		if _, dup := seenKeys[key]; dup {
			continue
		}
		seenKeys[key] = struct{}{}

		citations = append(citations, citationFromChunk(*chunk, mc.quote))
		if _, ok := seenChunks[chunk.ID]; !ok {
			seenChunks[chunk.ID] = struct{}{}
			matched = append(matched, *chunk)
		}
	}

	if len(citations) == 0 {
		return nil, nil, dropped, domain.ErrOutputUnmatchedCite
	}
	return citations, matched, dropped, nil
}

// matchChunk finds the chunk for a citation: same document and page first,
// then the first chunk of the same document.
func matchChunk(mc modelCitation, chunks []domain.Chunk) *domain.Chunk {
	if mc.docID == "" {
		return nil
	}
	for i := range chunks {
		if chunks[i].DocumentID == mc.docID && equalIntPtr(chunks[i].PageStart, mc.page) {
			return &chunks[i]
		}
	}
	for i := range chunks {
		if chunks[i].DocumentID == mc.docID {
			return &chunks[i]
		}
	}
	return nil
}

func citationFromChunk(c domain.Chunk, modelQuote string) domain.Citation {
	return domain.Citation{
		DocTitle:        c.DocumentTitle,
		DocID:           c.DocumentID,
		DocumentVersion: c.DocumentVersion,
		PageNumber:      copyIntPtr(c.PageStart),
		StartOffset:     copyIntPtr(c.OffsetStart),
		EndOffset:       copyIntPtr(c.OffsetEnd),
		Quote:           pickQuote(modelQuote, c.Text),
		SourceURI:       c.SourceURI,
	}
}

// pickQuote keeps the model's quote only when it is verbatim chunk text
// (ignoring whitespace differences); otherwise it quotes the chunk itself.
func pickQuote(modelQuote, chunkText string) string {
	q := collapseWhitespace(modelQuote)
	if q != "" && strings.Contains(collapseWhitespace(chunkText), q) {
		return TruncateWords(q, MaxQuoteWords)
	}
	return TruncateWords(chunkText, MaxQuoteWords)
}

// TruncateWords keeps at most n whitespace-separated words.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseModelCitation(raw json.RawMessage) (modelCitation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return modelCitation{}, domain.ErrOutputInvalidCitation
	}

	var mc modelCitation
	mc.docID = strings.TrimSpace(scalarString(fields["doc_id"]))
	mc.quote, _ = stringField(fields, "quote")

	page, ok := intField(fields["page_number"])
	if !ok {
		return modelCitation{}, domain.ErrOutputInvalidCitation
	}
	mc.page = page
	return mc, nil
}

// stringField reads a JSON string. A missing or null field reads as "".
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intField reads an optional integer given as a JSON number or numeric
// string within int32 range. ok is false for any other value.
func intField(raw json.RawMessage) (*int, bool) {
	if len(raw) == 0 || isNull(raw) {
		return nil, true
	}
	s := scalarString(raw)
	if s == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, false
	}
	n := int(f)
	return &n, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
