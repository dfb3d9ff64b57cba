package repository

import (
	"context"
	"strconv"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists and lists answered questions.
type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

const insertAuditSQL = `INSERT INTO audit_logs (
		id, trace_id, request_id, user_id, role_names, query,
		request_language, response_language, retrieved_chunk_ids, answer,
		confidence, missing_info, refusal_reason, model_provider, model_name,
		latency_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

func auditArgs(rec *domain.AuditRecord) []any {
	roles := rec.RoleNames
	if roles == nil {
		roles = []string{}
	}
	chunkIDs := rec.RetrievedChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	return []any{
		rec.ID,
		rec.TraceID,
		nullableString(rec.RequestID),
		nullableString(rec.UserID),
		roles,
		rec.Query,
		string(rec.RequestLanguage),
		string(rec.ResponseLanguage),
		chunkIDs,
		rec.Answer,
		string(rec.Confidence),
		nullableString(rec.MissingInfo),
		nullableString(rec.RefusalReason),
		nullableString(rec.ModelProvider),
		nullableString(rec.ModelName),
		rec.LatencyMS,
		rec.CreatedAt,
	}
}

func (r *AuditRepository) Create(ctx context.Context, rec *domain.AuditRecord) error {
	_, err := r.db.Exec(ctx, insertAuditSQL, auditArgs(rec)...)
	return err
}

// CreateBatch inserts records in one round trip.
func (r *AuditRepository) CreateBatch(ctx context.Context, recs []*domain.AuditRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertAuditSQL, auditArgs(rec)...)
	}

	results := r.db.SendBatch(ctx, batch)
	for range recs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

// List returns records newest first, optionally for one user.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultAuditLimit
	}
	if limit > domain.MaxAuditLimit {
		limit = domain.MaxAuditLimit
	}

	query := `SELECT id::text, trace_id, request_id, user_id, role_names, query,
			request_language, response_language, retrieved_chunk_ids, answer,
			confidence, missing_info, refusal_reason, model_provider, model_name,
			latency_ms, created_at
		FROM audit_logs
		WHERE ($1::text IS NULL OR user_id = $1)`
	args := []any{nullableString(filter.UserID)}

	if filter.Cursor != nil {
		query += ` AND (created_at, id) < ($2, $3::uuid)`
		args = append(args, filter.Cursor.Timestamp, filter.Cursor.LastID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + placeholder(len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := pagination.Paginate(items, limit, func(rec *domain.AuditRecord) pagination.Cursor {
		return pagination.Cursor{LastID: rec.ID, Timestamp: rec.CreatedAt}
	})
	return &domain.AuditPage{
		Items:      page.Items,
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}, nil
}

func scanAudit(rows pgx.Rows) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var requestID, userID, missingInfo, refusalReason, provider, model *string
	var reqLang, respLang, confidence string
	if err := rows.Scan(
		&rec.ID, &rec.TraceID, &requestID, &userID, &rec.RoleNames, &rec.Query,
		&reqLang, &respLang, &rec.RetrievedChunkIDs, &rec.Answer,
		&confidence, &missingInfo, &refusalReason, &provider, &model,
		&rec.LatencyMS, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.RequestID = derefString(requestID)
	rec.UserID = derefString(userID)
	rec.MissingInfo = derefString(missingInfo)
	rec.RefusalReason = derefString(refusalReason)
	rec.ModelProvider = derefString(provider)
	rec.ModelName = derefString(model)
	rec.RequestLanguage = domain.Language(reqLang)
	rec.ResponseLanguage = domain.Language(respLang)
	rec.Confidence = domain.Confidence(confidence)
	return &rec, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
