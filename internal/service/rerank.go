package service

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// FilterChunks keeps only chunks from allowed documents that are approved.
// It repeats checks the search already applied so an inconsistent store can
// never leak a chunk into the prompt.
func FilterChunks(chunks []domain.Chunk, allowedDocumentIDs []string) []domain.Chunk {
	allowed := make(map[string]struct{}, len(allowedDocumentIDs))
	for _, id := range allowedDocumentIDs {
		allowed[id] = struct{}{}
	}

	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := allowed[c.DocumentID]; !ok {
			continue
		}
		if c.DocumentStatus != domain.DocumentStatusApproved {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Reranker reorders or prunes candidates before prompting. Implementations
// must only return chunks taken from the input.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []domain.Chunk) []domain.Chunk
}

// IdentityReranker keeps the retrieval order.
type IdentityReranker struct{}

func (IdentityReranker) Rerank(_ context.Context, _ string, chunks []domain.Chunk) []domain.Chunk {
	return chunks
}

// RerankFunc adapts a function to Reranker.
type RerankFunc func(ctx context.Context, question string, chunks []domain.Chunk) []domain.Chunk

func (f RerankFunc) Rerank(ctx context.Context, question string, chunks []domain.Chunk) []domain.Chunk {
	return f(ctx, question, chunks)
}

// rerankSafely runs r, keeps only ids from the input and restores each chunk
// from the input, so a reranker can reorder or prune but never alter. A
// reranker that panics leaves the input order in place.
func rerankSafely(ctx context.Context, r Reranker, question string, chunks []domain.Chunk) (out []domain.Chunk) {
	if r == nil {
		return chunks
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("panic", fmt.Sprint(p)).Int("chunks", len(chunks)).Msg("reranker panicked, keeping retrieval order")
			out = chunks
		}
	}()
	known := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		known[c.ID] = c
	}
	reranked := r.Rerank(ctx, question, chunks)
	out = make([]domain.Chunk, 0, len(reranked))
	seen := make(map[string]struct{}, len(reranked))
	for _, c := range reranked {
		orig, ok := known[c.ID]
		if !ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, orig)
	}
	return out
}
