package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// SentryMiddleware opens one transaction per request on a cloned hub so
// scope data never leaks between requests. Without sentry.Init it only
// costs the clone.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		opts := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceRoute),
		}
		if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
			opts = append(opts, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
		}

		tx := sentry.StartTransaction(
			sentry.SetHubOnContext(r.Context(), hub),
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			opts...,
		)
		defer tx.Finish()
		r = r.WithContext(tx.Context())

		requestID := GetRequestID(r.Context())
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetRequest(r)
			if requestID != "" {
				scope.SetTag("request_id", requestID)
			}
		})
		if requestID != "" {
			tx.SetTag("request_id", requestID)
		}

		defer func() {
			if v := recover(); v != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), v)
				panic(v)
			}
		}()

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		status := rec.Status()
		tx.Status = spanStatus(status)
		tx.SetData("http.response.status_code", status)
		annotate(hub, tx, r, rec)

		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
		}
	})
}

// annotate adds what inner handlers learned: the caller key, the answer
// trace id and whether the copilot refused.
func annotate(hub *sentry.Hub, tx *sentry.Span, r *http.Request, rec *statusRecorder) {
	tags := map[string]string{}
	if p := GetPrincipal(r.Context()); p != nil {
		tags["api_key"] = p.Name
	}
	if traceID := rec.Header().Get("X-Trace-Id"); traceID != "" {
		tags["trace_id"] = traceID
	}
	if reason := GetRefusalReason(r.Context()); reason != "" {
		tags["refused"] = "true"
		tx.SetData("refusal_reason", reason)
	}

	hub.Scope().SetTags(tags)
	for k, v := range tags {
		tx.SetTag(k, v)
	}
}

var spanStatuses = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:          sentry.SpanStatusUnauthenticated,
	http.StatusForbidden:             sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusConflict:              sentry.SpanStatusAlreadyExists,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusFailedPrecondition,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	499:                              sentry.SpanStatusCanceled,
	http.StatusNotImplemented:        sentry.SpanStatusUnimplemented,
	http.StatusBadGateway:            sentry.SpanStatusUnavailable,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

func spanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatuses[status]; ok {
		return s
	}
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}
