package repository

import (
	"context"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessRepository resolves which documents a caller may read.
type AccessRepository struct {
	db dbtx
}

func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{db: pool}
}

// AccessibleDocumentIDs returns approved documents granted to at least one of
// the caller's roles whose access tags are contained in the caller's
// attributes. An empty role set yields no documents without querying.
func (r *AccessRepository) AccessibleDocumentIDs(ctx context.Context, access domain.AccessContext) ([]string, error) {
	if !access.HasRoles() {
		return []string{}, nil
	}

	attrs := access.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT d.id::text
		 FROM documents d
		 JOIN document_acl a ON a.document_id = d.id
		 JOIN roles r ON r.id = a.role_id
		 WHERE d.status = 'approved'
		   AND r.name = ANY($1)
		   AND d.access_tags <@ $2::jsonb
		 ORDER BY 1`,
		access.RoleNames, attrs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
