package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/telemetry"
)

// AccessRepository resolves the documents a caller may read.
type AccessRepository interface {
	AccessibleDocumentIDs(ctx context.Context, access domain.AccessContext) ([]string, error)
}

// ChunkSearcher finds the chunks nearest to a query vector.
type ChunkSearcher interface {
	NearestChunks(ctx context.Context, documentIDs []string, embedding []float32, model string, limit int) ([]domain.Chunk, error)
}

// Embedder turns question text into a query vector. Model names the tag the
// stored chunk embeddings were produced with.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// AccessResolver wraps the access lookup and folds store failures into the
// transport failure kind.
type AccessResolver struct {
	repo AccessRepository
}

func NewAccessResolver(repo AccessRepository) *AccessResolver {
	return &AccessResolver{repo: repo}
}

// Resolve returns the accessible document ids. An empty role set yields an
// empty set without touching the store.
func (r *AccessResolver) Resolve(ctx context.Context, access domain.AccessContext) ([]string, error) {
	if !access.HasRoles() {
		return []string{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "AccessResolver.Resolve", telemetry.SpanAttributes{Stage: "access"})
	defer span.End()

	ids, err := r.repo.AccessibleDocumentIDs(ctx, access)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrAccessUnavailable.Message, err)
	}
	span.SetData("documents", len(ids))
	return ids, nil
}

// Retriever embeds a question and searches the accessible documents.
type Retriever struct {
	embedder      Embedder
	chunks        ChunkSearcher
	maxTopK       int
	searchTimeout time.Duration
}

// NewRetriever returns a retriever capping top_k at maxTopK. A positive
// searchTimeout bounds the vector query; the embedder bounds its own call.
func NewRetriever(embedder Embedder, chunks ChunkSearcher, maxTopK int, searchTimeout time.Duration) *Retriever {
	if maxTopK <= 0 {
		maxTopK = 20
	}
	return &Retriever{embedder: embedder, chunks: chunks, maxTopK: maxTopK, searchTimeout: searchTimeout}
}

// Retrieve returns up to topK chunks closest first. With no allowed
// documents it returns nothing and makes no embedding or search call.
func (r *Retriever) Retrieve(ctx context.Context, question string, documentIDs []string, topK int) ([]domain.Chunk, error) {
	if len(documentIDs) == 0 {
		return []domain.Chunk{}, nil
	}
	topK = max(1, min(topK, r.maxTopK))

	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{Stage: "retrieve"})
	defer span.End()

	vec, err := r.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		span.SetError(err)
		if domain.CodeOf(err) == domain.ErrCodeTransport {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrEmbeddingUnavailable.Message, err)
	}

	searchCtx := ctx
	if r.searchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, r.searchTimeout)
		defer cancel()
	}

	chunks, err := r.chunks.NearestChunks(searchCtx, documentIDs, vec, r.embedder.Model(), topK)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrSearchUnavailable.Message, err)
	}
	span.SetData("chunks", len(chunks))
	return chunks, nil
}
