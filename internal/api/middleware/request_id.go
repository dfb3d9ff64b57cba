package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/cloo-solutions/copilot/internal/domain"
)

const (
	RequestIDKey contextKey = "request_id"
	stateKey     contextKey = "request_state"
)

// requestState is shared by every middleware of one request. Handlers deeper
// in the chain write to it so outer middleware can read their results.
type requestState struct {
	principal     *domain.Principal
	refusalReason string
}

// maxRequestIDLen bounds a caller-supplied request id.
const maxRequestIDLen = 128

// RequestID injects a request ID into context and response headers. A
// caller-supplied X-Request-ID is kept when it is short and printable.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = context.WithValue(ctx, stateKey, &requestState{})
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func getState(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey).(*requestState)
	return st
}

// SetRefusalReason notes that the request was answered with the refusal
// payload so the access log and Sentry can report it.
func SetRefusalReason(ctx context.Context, reason string) {
	if st := getState(ctx); st != nil {
		st.refusalReason = reason
	}
}

// GetRefusalReason returns the reason set by SetRefusalReason, or "".
func GetRefusalReason(ctx context.Context) string {
	if st := getState(ctx); st != nil {
		return st.refusalReason
	}
	return ""
}
