package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
)

// AccessLog emits one structured log entry per HTTP request.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		status := rec.Status()

		var keyName string
		if p := GetPrincipal(r.Context()); p != nil {
			keyName = p.Name
		}

		entry := log.Info()
		if status >= http.StatusInternalServerError {
			entry = log.Error()
		} else if status >= http.StatusBadRequest {
			entry = log.Warn()
		}

		entry.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("request_id", GetRequestID(r.Context())).
			Str("trace_id", w.Header().Get("X-Trace-Id")).
			Str("api_key", keyName).
			Str("refusal_reason", GetRefusalReason(r.Context())).
			Str("remote_addr", clientIP(r)).
			Str("user_agent", r.UserAgent()).
			Msg("http request")
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
