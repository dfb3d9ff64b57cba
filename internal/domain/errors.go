package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so wrapped sentinels still match with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"

	// Answer pipeline failure kinds. All of them are recovered into the
	// refusal payload and never reach the caller as errors.
	ErrCodeTransport       = "TRANSPORT_FAILURE"
	ErrCodeMalformedOutput = "MALFORMED_OUTPUT"
	ErrCodeSchemaViolation = "SCHEMA_VIOLATION"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidLanguage      = NewDomainError(ErrCodeValidation, "invalid language")
	ErrInvalidCursor        = NewDomainError(ErrCodeValidation, "invalid cursor")
)

// Not found errors
var (
	ErrAPIKeyNotFound = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrAPIKeyAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked    = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey    = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrInsufficientRole = NewDomainError(ErrCodeForbidden, "insufficient role")
)

// Pipeline errors
var (
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeTransport, "embedding endpoint unavailable")
	ErrSearchUnavailable     = NewDomainError(ErrCodeTransport, "vector search unavailable")
	ErrAccessUnavailable     = NewDomainError(ErrCodeTransport, "access lookup unavailable")
	ErrGenerationUnavailable = NewDomainError(ErrCodeTransport, "generation endpoint unavailable")

	ErrOutputNotJSON         = NewDomainError(ErrCodeMalformedOutput, "model output is not a JSON object")
	ErrOutputBadShape        = NewDomainError(ErrCodeMalformedOutput, "model output has the wrong shape")
	ErrOutputRefused         = NewDomainError(ErrCodeMalformedOutput, "model returned the refusal text")
	ErrOutputNoCitations     = NewDomainError(ErrCodeMalformedOutput, "model output has no citations")
	ErrOutputUnmatchedCite   = NewDomainError(ErrCodeMalformedOutput, "citation does not match a retrieved chunk")
	ErrOutputEmptyAnswer     = NewDomainError(ErrCodeMalformedOutput, "model answer is empty")
	ErrOutputInvalidCitation = NewDomainError(ErrCodeMalformedOutput, "citation has invalid shape")

	ErrPayloadSchema = NewDomainError(ErrCodeSchemaViolation, "answer payload failed schema validation")
)
