package domain

import "context"

// Chunk is one indexed unit of knowledge-base text. Chunks are immutable
// once indexed; the runtime only reads them.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourceID   string    `json:"source_id"`
	Collection string    `json:"collection"`
	Embedding  []float32 `json:"-"`
}

// RetrievalResult pairs a chunk with its similarity score. Result lists are
// ordered descending by score and discarded after the request completes.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// VectorStore queries per-domain collections for nearest neighbors.
// Query vectors must match the collection's configured dimension; a mismatch
// fails fast with ErrDimensionMismatch. Reads are safe under arbitrary
// concurrency.
type VectorStore interface {
	Query(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]RetrievalResult, error)
	Upsert(ctx context.Context, collection string, chunk Chunk) error
	Collections(ctx context.Context) ([]string, error)
}

// Retriever composes an embedder and a vector store into scored context
// lookup. An empty result list is a normal outcome, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string, topK int, minScore float64) ([]RetrievalResult, error)
}
