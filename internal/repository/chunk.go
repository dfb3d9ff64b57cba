package repository

import (
	"context"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository runs nearest-neighbor searches over chunk embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

// NearestChunks returns up to limit chunks from the active versions of the
// given approved documents, closest first by cosine distance. Only
// embeddings produced by model are considered.
func (r *ChunkRepository) NearestChunks(ctx context.Context, documentIDs []string, embedding []float32, model string, limit int) ([]domain.Chunk, error) {
	if len(documentIDs) == 0 || limit <= 0 {
		return []domain.Chunk{}, nil
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT
			c.id::text,
			c.text,
			c.page_start,
			c.page_end,
			c.section,
			c.offset_start,
			c.offset_end,
			dv.id::text,
			dv.version,
			d.id::text,
			d.title,
			d.status,
			dv.source_uri,
			(e.embedding <=> $1) AS distance
		 FROM embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 JOIN document_versions dv ON dv.id = c.document_version_id
		 JOIN documents d ON d.id = dv.document_id
		 WHERE d.id = ANY($2::uuid[])
		   AND d.status = 'approved'
		   AND dv.is_active = true
		   AND e.model = $3
		 ORDER BY e.embedding <=> $1
		 LIMIT $4`,
		vec, documentIDs, model, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0, limit)
	for rows.Next() {
		var c domain.Chunk
		var section *string
		var status string
		var distance float64
		if err := rows.Scan(
			&c.ID, &c.Text, &c.PageStart, &c.PageEnd, &section, &c.OffsetStart, &c.OffsetEnd,
			&c.DocumentVersionID, &c.DocumentVersion, &c.DocumentID, &c.DocumentTitle, &status,
			&c.SourceURI, &distance,
		); err != nil {
			return nil, err
		}
		c.Section = derefString(section)
		c.DocumentStatus = domain.DocumentStatus(status)
		c.Distance = &distance
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
