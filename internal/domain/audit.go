package domain

import (
	"time"

	"github.com/cloo-solutions/copilot/internal/pagination"
)

// Audit listing page sizes.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// AuditRecord captures one answered question for later review.
type AuditRecord struct {
	ID                string     `json:"id"`
	TraceID           string     `json:"trace_id"`
	RequestID         string     `json:"request_id,omitempty"`
	UserID            string     `json:"user_id,omitempty"`
	RoleNames         []string   `json:"role_names"`
	Query             string     `json:"query"`
	RequestLanguage   Language   `json:"request_language"`
	ResponseLanguage  Language   `json:"response_language"`
	RetrievedChunkIDs []string   `json:"retrieved_chunk_ids"`
	Answer            string     `json:"answer"`
	Confidence        Confidence `json:"confidence"`
	MissingInfo       string     `json:"missing_info,omitempty"`
	RefusalReason     string     `json:"refusal_reason,omitempty"`
	ModelProvider     string     `json:"model_provider,omitempty"`
	ModelName         string     `json:"model_name,omitempty"`
	LatencyMS         int64      `json:"latency_ms"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Refused reports whether the recorded answer was the canonical refusal.
func (r *AuditRecord) Refused() bool {
	return r.RefusalReason != ""
}

// AuditFilter narrows an audit listing. Cursor resumes after the last record
// of a previous page.
type AuditFilter struct {
	UserID string
	Cursor *pagination.Cursor
	Limit  int
}

// AuditPage is one newest-first page of audit records.
type AuditPage struct {
	Items      []*AuditRecord
	NextCursor string
	HasMore    bool
}
