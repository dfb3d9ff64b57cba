package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/telemetry"
)

// SchemaGate is the last check before a payload leaves the service. A
// payload that fails it is replaced by the canonical refusal.
type SchemaGate struct {
	validate *validator.Validate
}

// NewSchemaGate builds the gate and checks that both refusal payloads pass
// it. It panics otherwise: the refusal is the fallback for every failure and
// must always be valid.
func NewSchemaGate() *SchemaGate {
	g := &SchemaGate{validate: newValidator()}
	for _, lang := range []domain.Language{domain.LanguageEnglish, domain.LanguageArabic} {
		if err := g.Validate(RefusalPayload(lang)); err != nil {
			panic(fmt.Sprintf("refusal payload for %q fails schema: %v", lang, err))
		}
	}
	return g
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("maxwords", validateMaxWords)
	v.RegisterStructValidation(validateAnswerPayload, domain.AnswerPayload{})
	return v
}

// validateMaxWords checks that a string has at most param words.
func validateMaxWords(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(strings.Fields(fl.Field().String())) <= limit
}

// validateAnswerPayload enforces the rules that tie fields together.
func validateAnswerPayload(sl validator.StructLevel) {
	p := sl.Current().Interface().(domain.AnswerPayload)

	low := p.Confidence == domain.ConfidenceLow
	if low != (p.MissingInfo != nil) {
		sl.ReportError(p.MissingInfo, "MissingInfo", "missing_info", "low_confidence_only", "")
	}

	refusal := IsRefusalText(p.Answer)
	if refusal != (len(p.Citations) == 0) {
		sl.ReportError(p.Citations, "Citations", "citations", "refusal_iff_empty", "")
	}
	if len(p.Citations) == 0 && !low {
		sl.ReportError(p.Confidence, "Confidence", "confidence", "empty_citations_low", "")
	}
}

// Validate checks p against the output schema.
func (g *SchemaGate) Validate(p domain.AnswerPayload) error {
	if err := g.validate.Struct(p); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeSchemaViolation, domain.ErrPayloadSchema.Message, err)
	}
	return nil
}

// Enforce returns p when it is valid. Otherwise it returns the refusal for
// lang together with the violation, which is logged at error level.
func (g *SchemaGate) Enforce(ctx context.Context, p domain.AnswerPayload, lang domain.Language) (domain.AnswerPayload, error) {
	err := g.Validate(p)
	if err == nil {
		return p, nil
	}

	log.Error().Err(err).Str("language", string(lang)).Msg("answer payload failed schema validation")
	telemetry.CaptureError(ctx, err)
	return RefusalPayload(lang), err
}

// DecodeAnswerPayload parses a response body, rejecting unknown fields, and
// validates the result.
func DecodeAnswerPayload(data []byte) (domain.AnswerPayload, error) {
	var p domain.AnswerPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return domain.AnswerPayload{}, domain.NewDomainErrorWithCause(domain.ErrCodeSchemaViolation, domain.ErrPayloadSchema.Message, err)
	}
	if err := defaultSchemaGate.Validate(p); err != nil {
		return domain.AnswerPayload{}, err
	}
	return p, nil
}

var defaultSchemaGate = NewSchemaGate()
