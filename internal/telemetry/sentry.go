// Package telemetry wires Sentry tracing and error capture into the answer
// pipeline.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/phuslu/log"
)

const serverName = "copilot"

// flushTimeout bounds how long shutdown waits for queued events.
const flushTimeout = 5 * time.Second

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function.
// An empty DSN leaves Sentry disabled. Init never fails the caller: a
// client that cannot be built is logged and tracing stays off.
func Init(cfg Config) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 || cfg.TracesSampleRate > 1 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend:       scrubEvent,
		Debug:            cfg.Debug,
		ServerName:       serverName,
	})
	if err != nil {
		log.Warn().Err(err).Msg("sentry: init failed, tracing disabled")
		return noop, nil
	}

	log.Info().
		Str("environment", cfg.Environment).
		Float64("sample_rate", cfg.TracesSampleRate).
		Msg("sentry: tracing initialized")
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops health probes and keeps child spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if strings.HasSuffix(ctx.Span.Name, "/health") {
			return 0
		}
		var none sentry.SpanID
		if ctx.Span.ParentSpanID != none {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// sensitiveHeaders never leave the process. Questions and answers can carry
// customer data, so request bodies are dropped as well.
var sensitiveHeaders = []string{"Authorization", "Cookie", "X-Api-Key"}

func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}
	event.Request.Data = ""
	event.Request.Cookies = ""
	for _, h := range sensitiveHeaders {
		delete(event.Request.Headers, h)
	}
	return event
}

// SpanAttributes tag a pipeline span. Empty fields are skipped.
type SpanAttributes struct {
	TraceID   string
	Language  string
	Stage     string
	Operation string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	for tag, v := range map[string]string{
		"trace_id": a.TraceID,
		"language": a.Language,
		"stage":    a.Stage,
	} {
		if v != "" {
			span.SetTag(tag, v)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a nil-safe handle on a Sentry span.
type Span struct {
	inner *sentry.Span
}

// StartSpan opens a child of the span already in ctx, or a new transaction
// when there is none. End must be called on the returned span.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild("pipeline." + attrs.Stage)
		span.Description = name
	} else {
		span = sentry.StartSpan(ctx, "pipeline."+attrs.Stage, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// End finishes the span, marking it OK unless a status was already set.
func (s *Span) End() {
	if s.inner == nil {
		return
	}
	if s.inner.Status == sentry.SpanStatusUndefined {
		s.inner.Status = sentry.SpanStatusOK
	}
	s.inner.Finish()
}

// SetError marks the span failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// SetData attaches a value to the span.
func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// Context returns the span's context.
func (s *Span) Context() context.Context {
	if s.inner == nil {
		return context.Background()
	}
	return s.inner.Context()
}

// CaptureError reports err on the request's hub, falling back to the
// global hub outside a request.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
