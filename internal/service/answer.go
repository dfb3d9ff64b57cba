package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/telemetry"
)

// Refusal reasons that are not errors.
const (
	ReasonNoDocuments = "no accessible documents"
	ReasonNoChunks    = "no chunks retrieved"
)

// Generator produces raw model text for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Name() string
	Model() string
}

// AuditSink accepts finished audit records without blocking.
type AuditSink interface {
	Record(rec *domain.AuditRecord) bool
}

// AnswerUser is the end user a question is asked for.
type AnswerUser struct {
	ID         string         `json:"id"`
	RoleNames  []string       `json:"role_names"`
	Attributes map[string]any `json:"attributes"`
}

// AnswerRequest is one question to the copilot.
type AnswerRequest struct {
	Question  string               `json:"question" validate:"required"`
	Language  string               `json:"language" validate:"omitempty,oneof=en ar"`
	TopK      *int                 `json:"top_k" validate:"omitempty,min=1,max=20"`
	User      AnswerUser           `json:"user"`
	History   []domain.HistoryTurn `json:"history" validate:"omitempty,dive"`
	RequestID string               `json:"-"`
}

// StageTimings records how long each pipeline stage took.
type StageTimings struct {
	Access   time.Duration `json:"access"`
	Retrieve time.Duration `json:"retrieve"`
	Generate time.Duration `json:"generate"`
	Validate time.Duration `json:"validate"`
	Total    time.Duration `json:"total"`
}

// AnswerResult is the payload plus the metadata the transport exposes.
type AnswerResult struct {
	Payload           domain.AnswerPayload
	TraceID           string
	RetrievedChunkIDs []string
	// RefusalReason is empty when the answer was accepted.
	RefusalReason string
	Timings       StageTimings
}

// Refused reports whether the payload is the canonical refusal.
func (r *AnswerResult) Refused() bool {
	return r.RefusalReason != ""
}

// AnswererDeps wires the pipeline stages together.
type AnswererDeps struct {
	Access       *AccessResolver
	Retriever    *Retriever
	Reranker     Reranker
	Prompts      *PromptBuilder
	Generator    Generator
	Guardrail    *Guardrail
	Gate         *SchemaGate
	Audit        AuditSink
	UUIDGen      UUIDGenerator
	DefaultTopK  int
	QueryTimeout time.Duration
}

// Answerer runs the retrieval-augmented answering pipeline. It never returns
// an error for a failure inside the pipeline: those become the refusal.
type Answerer struct {
	access       *AccessResolver
	retriever    *Retriever
	reranker     Reranker
	prompts      *PromptBuilder
	generator    Generator
	guardrail    *Guardrail
	gate         *SchemaGate
	audit        AuditSink
	uuidGen      UUIDGenerator
	validate     *validator.Validate
	defaultTopK  int
	queryTimeout time.Duration
}

func NewAnswerer(deps AnswererDeps) *Answerer {
	a := &Answerer{
		access:       deps.Access,
		retriever:    deps.Retriever,
		reranker:     deps.Reranker,
		prompts:      deps.Prompts,
		generator:    deps.Generator,
		guardrail:    deps.Guardrail,
		gate:         deps.Gate,
		audit:        deps.Audit,
		uuidGen:      deps.UUIDGen,
		defaultTopK:  deps.DefaultTopK,
		queryTimeout: deps.QueryTimeout,
	}
	if a.reranker == nil {
		a.reranker = IdentityReranker{}
	}
	if a.prompts == nil {
		a.prompts = NewPromptBuilder(DefaultHistoryTurns, 0, nil)
	}
	if a.guardrail == nil {
		a.guardrail = NewGuardrail(CitationPolicyStrict)
	}
	if a.gate == nil {
		a.gate = NewSchemaGate()
	}
	if a.uuidGen == nil {
		a.uuidGen = &DefaultUUIDGenerator{}
	}
	if a.defaultTopK <= 0 {
		a.defaultTopK = 5
	}
	a.validate = newRequestValidator()
	return a
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest normalizes req in place and rejects malformed input.
func (a *Answerer) ValidateRequest(req *AnswerRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	req.Language = strings.TrimSpace(req.Language)

	if err := a.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
				fmt.Sprintf("%s failed on '%s' tag", e.Field(), e.Tag()), err)
		}
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid request", err)
	}
	return nil
}

// Answer validates req and runs the pipeline. The returned error is always a
// validation error; every other failure yields the refusal payload.
func (a *Answerer) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	if err := a.ValidateRequest(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	lang := domain.NormalizeLanguage(req.Language)
	res := &AnswerResult{
		TraceID:           a.uuidGen.NewString(),
		RetrievedChunkIDs: []string{},
	}

	ctx, span := telemetry.StartSpan(ctx, "Answerer.Answer", telemetry.SpanAttributes{
		TraceID:  res.TraceID,
		Language: string(lang),
		Stage:    "answer",
	})
	defer span.End()

	payload, reason := a.run(ctx, req, lang, res)

	payload, err := a.gate.Enforce(ctx, payload, lang)
	if err != nil {
		reason = err
	}
	res.Payload = payload
	res.RefusalReason = refusalReason(reason)
	res.Timings.Total = time.Since(start)

	span.SetData("refused", res.Refused())
	span.SetData("confidence", string(payload.Confidence))

	log.Info().
		Str("trace_id", res.TraceID).
		Str("request_id", req.RequestID).
		Str("language", string(lang)).
		Int("chunks", len(res.RetrievedChunkIDs)).
		Str("confidence", string(payload.Confidence)).
		Str("refusal_reason", res.RefusalReason).
		Dur("latency", res.Timings.Total).
		Msg("answer completed")

	a.recordAudit(req, lang, res)
	return res, nil
}

// run executes the stages and returns the payload with the reason for a
// refusal, or a nil reason when the answer was accepted.
func (a *Answerer) run(ctx context.Context, req AnswerRequest, lang domain.Language, res *AnswerResult) (domain.AnswerPayload, error) {
	access := domain.AccessContext{RoleNames: req.User.RoleNames, Attributes: req.User.Attributes}

	stage := time.Now()
	docIDs, err := a.resolve(ctx, access)
	res.Timings.Access = time.Since(stage)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", res.TraceID).Msg("access resolution failed")
		return RefusalPayload(lang), err
	}
	if len(docIDs) == 0 {
		return RefusalPayload(lang), errors.New(ReasonNoDocuments)
	}

	topK := a.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	stage = time.Now()
	chunks, err := a.retriever.Retrieve(ctx, req.Question, docIDs, topK)
	res.Timings.Retrieve = time.Since(stage)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", res.TraceID).Msg("retrieval failed")
		return RefusalPayload(lang), err
	}

	chunks = FilterChunks(chunks, docIDs)
	chunks = rerankSafely(ctx, a.reranker, req.Question, chunks)
	res.RetrievedChunkIDs = domain.ChunkIDs(chunks)
	if len(chunks) == 0 {
		return RefusalPayload(lang), errors.New(ReasonNoChunks)
	}

	prompt := a.prompts.Build(PromptInput{
		Question:  req.Question,
		Language:  lang,
		RoleNames: req.User.RoleNames,
		History:   req.History,
		Chunks:    chunks,
	})

	stage = time.Now()
	raw, err := a.generate(ctx, prompt)
	res.Timings.Generate = time.Since(stage)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", res.TraceID).Msg("generation failed")
		return RefusalPayload(lang), err
	}

	stage = time.Now()
	outcome := a.guardrail.Validate(SanitizeResponse(raw), prompt.Chunks, lang)
	res.Timings.Validate = time.Since(stage)
	if !outcome.Accepted() {
		log.Info().
			Err(outcome.Err).
			Str("trace_id", res.TraceID).
			Str("failed_at", string(outcome.FailedAt)).
			Msg("model output refused")
		return RefusalPayload(lang), outcome.Err
	}
	if outcome.Dropped > 0 {
		log.Debug().Int("dropped", outcome.Dropped).Str("trace_id", res.TraceID).Msg("dropped unmatched citations")
	}

	return outcome.Payload, nil
}

func (a *Answerer) resolve(ctx context.Context, access domain.AccessContext) ([]string, error) {
	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}
	return a.access.Resolve(ctx, access)
}

func (a *Answerer) generate(ctx context.Context, prompt Prompt) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "Generator.Generate", telemetry.SpanAttributes{
		Stage:     "generate",
		Operation: a.generator.Name(),
	})
	defer span.End()

	raw, err := a.generator.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		span.SetError(err)
		if domain.CodeOf(err) == domain.ErrCodeTransport {
			return "", err
		}
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrGenerationUnavailable.Message, err)
	}
	return raw, nil
}

func (a *Answerer) recordAudit(req AnswerRequest, lang domain.Language, res *AnswerResult) {
	if a.audit == nil {
		return
	}

	reqLang := domain.Language(req.Language)
	if reqLang == "" {
		reqLang = lang
	}
	var missing string
	if res.Payload.MissingInfo != nil {
		missing = *res.Payload.MissingInfo
	}

	rec := &domain.AuditRecord{
		ID:                a.uuidGen.NewString(),
		TraceID:           res.TraceID,
		RequestID:         req.RequestID,
		UserID:            req.User.ID,
		RoleNames:         req.User.RoleNames,
		Query:             req.Question,
		RequestLanguage:   reqLang,
		ResponseLanguage:  res.Payload.Language,
		RetrievedChunkIDs: res.RetrievedChunkIDs,
		Answer:            res.Payload.Answer,
		Confidence:        res.Payload.Confidence,
		MissingInfo:       missing,
		RefusalReason:     res.RefusalReason,
		ModelProvider:     a.generator.Name(),
		ModelName:         a.generator.Model(),
		LatencyMS:         res.Timings.Total.Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	}
	if !a.audit.Record(rec) {
		log.Warn().Str("trace_id", res.TraceID).Msg("audit queue full, record dropped")
	}
}

// refusalReason renders err for the audit trail: the domain message when
// there is one.
func refusalReason(err error) string {
	if err == nil {
		return ""
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
