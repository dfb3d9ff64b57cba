package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)
	assert.Same(t, rec, newStatusRecorder(rec), "an existing recorder is reused")
	assert.Equal(t, http.StatusOK, rec.Status())

	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusInternalServerError)
	n, err := rec.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rec.Status(), "the first status wins")
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, rec.bytes)
}

func TestMaxBodyBytes(t *testing.T) {
	var readErr error
	handler := MaxBodyBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))

	declared := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, declared)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	streamed := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	streamed.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), streamed)
	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestMaxBodyBytes_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	handler := MaxBodyBytes(0)(next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1<<10))))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireJSON(t *testing.T) {
	handler := RequireJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		contentType string
		want        int
	}{
		{"", http.StatusNoContent},
		{"application/json", http.StatusNoContent},
		{"application/json; charset=utf-8", http.StatusNoContent},
		{"text/plain", http.StatusUnsupportedMediaType},
		{";;;", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRefusalReason_ReachesOuterMiddleware(t *testing.T) {
	var seen string
	outer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			seen = GetRefusalReason(r.Context())
		})
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRefusalReason(r.Context(), "no chunks retrieved")
	})

	RequestID(outer(inner)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no chunks retrieved", seen)

	SetRefusalReason(context.Background(), "ignored without state")
	assert.Empty(t, GetRefusalReason(context.Background()))
}

func TestSentryMiddleware_PassesThrough(t *testing.T) {
	var hubSeen bool
	handler := RequestID(SentryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hubSeen = sentry.GetHubFromContext(r.Context()) != nil
		w.Header().Set("X-Trace-Id", "trace-1")
		w.WriteHeader(http.StatusCreated)
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, hubSeen)
}

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		status int
		want   sentry.SpanStatus
	}{
		{http.StatusOK, sentry.SpanStatusOK},
		{http.StatusNoContent, sentry.SpanStatusOK},
		{http.StatusBadRequest, sentry.SpanStatusInvalidArgument},
		{http.StatusUnauthorized, sentry.SpanStatusUnauthenticated},
		{http.StatusForbidden, sentry.SpanStatusPermissionDenied},
		{http.StatusTeapot, sentry.SpanStatusInvalidArgument},
		{http.StatusBadGateway, sentry.SpanStatusUnavailable},
		{http.StatusGatewayTimeout, sentry.SpanStatusDeadlineExceeded},
		{http.StatusInternalServerError, sentry.SpanStatusInternalError},
		{599, sentry.SpanStatusInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, spanStatus(tt.status), tt.status)
	}
}
