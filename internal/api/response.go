// Package api holds the JSON response helpers shared by handlers and
// middleware.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Int("status", status).Msg("failed to encode response")
	}
}

// Error writes a plain error body. The request id, when the RequestID
// middleware already set it on the response, is echoed for support.
func Error(w http.ResponseWriter, status int, message string) {
	writeError(w, status, message, "")
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:    http.StatusBadRequest,
	domain.ErrCodeNotFound:      http.StatusNotFound,
	domain.ErrCodeAlreadyExists: http.StatusConflict,
	domain.ErrCodeUnauthorized:  http.StatusUnauthorized,
	domain.ErrCodeForbidden:     http.StatusForbidden,
	domain.ErrCodeTransport:     http.StatusBadGateway,
}

// DomainErrorToHTTP returns the status for err. Anything that is not a
// known DomainError is a 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[de.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes the response for err. 5xx details stay in the log and
// Sentry; the client only sees the status text.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := DomainErrorToHTTP(err)

	var de *domain.DomainError
	isDomain := errors.As(err, &de)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		code := ""
		if isDomain {
			code = de.Code
		}
		writeError(w, status, http.StatusText(status), code)
		return
	}

	if isDomain {
		writeError(w, status, de.Message, de.Code)
		return
	}
	writeError(w, status, err.Error(), "")
}
