package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"venturedesk/internal/domain"
)

// KnowledgeRetriever composes the embedder and vector store into scored
// context lookup. An empty result list is a normal outcome; only embedding or
// store failures return errors.
type KnowledgeRetriever struct {
	embedder domain.EmbeddingProvider
	store    domain.VectorStore
	logger   *slog.Logger
}

// NewKnowledgeRetriever creates a retriever over the given embedder and store.
func NewKnowledgeRetriever(embedder domain.EmbeddingProvider, store domain.VectorStore, logger *slog.Logger) *KnowledgeRetriever {
	return &KnowledgeRetriever{embedder: embedder, store: store, logger: logger}
}

// Retrieve implements domain.Retriever.
func (r *KnowledgeRetriever) Retrieve(ctx context.Context, query, collection string, topK int, minScore float64) ([]domain.RetrievalResult, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, fmt.Errorf("embed query: %w", domain.ErrEmbeddingFailed)
	}

	results, err := r.store.Query(ctx, collection, vecs[0], topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	r.logger.Debug("retrieval completed",
		"collection", collection, "results", len(results), "top_k", topK)
	return results, nil
}

// RetrieveAll queries every collection and merges results by score. Used by
// the generic fallback agent, which has no home collection.
func (r *KnowledgeRetriever) RetrieveAll(ctx context.Context, query string, topK int, minScore float64) ([]domain.RetrievalResult, error) {
	collections, err := r.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if len(collections) == 0 {
		return nil, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, fmt.Errorf("embed query: %w", domain.ErrEmbeddingFailed)
	}

	var merged []domain.RetrievalResult
	for _, collection := range collections {
		results, err := r.store.Query(ctx, collection, vecs[0], topK, minScore)
		if err != nil {
			// One bad collection does not sink a cross-domain lookup.
			r.logger.Warn("collection query failed, skipping",
				"collection", collection, "error", err)
			continue
		}
		merged = append(merged, results...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

var _ domain.Retriever = (*KnowledgeRetriever)(nil)
