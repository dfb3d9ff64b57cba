package testutil

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingDims matches the vector column width in the schema.
const EmbeddingDims = 768

// DocumentFixture describes one document with a single version to seed.
type DocumentFixture struct {
	Title      string
	Status     string
	Roles      []string
	AccessTags map[string]any
	Version    string
	SourceURI  string
	Inactive   bool
	Chunks     []ChunkFixture
}

// ChunkFixture is a chunk plus the embedding stored for it.
type ChunkFixture struct {
	Text        string
	PageStart   *int
	PageEnd     *int
	OffsetStart *int
	OffsetEnd   *int
	Section     string
	Model       string
	Embedding   []float32
}

// SeededDocument carries the ids generated while seeding.
type SeededDocument struct {
	DocumentID string
	VersionID  string
	ChunkIDs   []string
}

// SeedDocument inserts roles, the document, its ACL, one version and its
// chunks with embeddings.
func SeedDocument(ctx context.Context, pool *pgxpool.Pool, f DocumentFixture) (*SeededDocument, error) {
	status := f.Status
	if status == "" {
		status = "approved"
	}
	tags := f.AccessTags
	if tags == nil {
		tags = map[string]any{}
	}
	version := f.Version
	if version == "" {
		version = "v1"
	}

	out := &SeededDocument{}
	err := pool.QueryRow(ctx,
		`INSERT INTO documents (title, status, access_tags) VALUES ($1, $2, $3) RETURNING id::text`,
		f.Title, status, tags,
	).Scan(&out.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	for _, role := range f.Roles {
		_, err := pool.Exec(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role)
		if err != nil {
			return nil, fmt.Errorf("insert role: %w", err)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO document_acl (document_id, role_id)
			 SELECT $1, id FROM roles WHERE name = $2`, out.DocumentID, role)
		if err != nil {
			return nil, fmt.Errorf("insert acl: %w", err)
		}
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO document_versions (document_id, version, source_uri, is_active)
		 VALUES ($1, $2, $3, $4) RETURNING id::text`,
		out.DocumentID, version, f.SourceURI, !f.Inactive,
	).Scan(&out.VersionID)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	for _, c := range f.Chunks {
		var chunkID string
		var section *string
		if c.Section != "" {
			section = &c.Section
		}
		err := pool.QueryRow(ctx,
			`INSERT INTO chunks (document_version_id, text, page_start, page_end, section, offset_start, offset_end)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id::text`,
			out.VersionID, c.Text, c.PageStart, c.PageEnd, section, c.OffsetStart, c.OffsetEnd,
		).Scan(&chunkID)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO embeddings (chunk_id, model, embedding) VALUES ($1, $2, $3)`,
			chunkID, c.Model, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return nil, fmt.Errorf("insert embedding: %w", err)
		}
		out.ChunkIDs = append(out.ChunkIDs, chunkID)
	}

	return out, nil
}

// Axis returns a unit vector along dimension i.
func Axis(i int) []float32 {
	v := make([]float32, EmbeddingDims)
	v[i%EmbeddingDims] = 1
	return v
}

// Toward returns a unit vector whose cosine distance from Axis(i) is
// approximately distance, rotated toward Axis(j).
func Toward(i, j int, distance float64) []float32 {
	cos := 1 - distance
	sin := math.Sqrt(math.Max(0, 1-cos*cos))
	v := make([]float32, EmbeddingDims)
	v[i%EmbeddingDims] = float32(cos)
	v[j%EmbeddingDims] += float32(sin)
	return v
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
