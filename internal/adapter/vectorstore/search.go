package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

// Query implements domain.VectorStore. Results come back in descending score
// order, capped at topK and filtered to scores >= minScore. Ties break on
// chunk ID so repeated queries over the same data are stable.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]domain.RetrievalResult, error) {
	ctx, span := tracer.StartSpan(ctx, "vectorstore.query",
		trace.WithAttributes(
			tracer.StringAttr("vectorstore.collection", collection),
			tracer.IntAttr("vectorstore.top_k", topK),
		),
	)
	defer span.End()

	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(vector) != dim {
		err := fmt.Errorf("%w: query vector has %d dimensions, collection %q wants %d",
			domain.ErrDimensionMismatch, len(vector), collection, dim)
		tracer.RecordError(span, err)
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	chunks, err := s.index.load(ctx, s, collection)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorSearch, err)
	}

	results := make([]domain.RetrievalResult, 0, len(chunks))
	for _, c := range chunks {
		score := float64(cosineSimilarity(vector, c.Embedding))
		if score < minScore {
			continue
		}
		results = append(results, domain.RetrievalResult{Chunk: c, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}

	span.SetAttributes(tracer.IntAttr("vectorstore.results", len(results)))
	tracer.SetOK(span)
	return results, nil
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Returns 0 for zero vectors, length mismatch, or NaN/Inf results.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	result := dot / denom
	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		return 0
	}
	return result
}

// chunkIndex caches each collection's chunks in memory so queries avoid a
// SQLite scan. Upsert invalidates the collection; the next query reloads.
type chunkIndex struct {
	mu          sync.RWMutex
	collections map[string][]domain.Chunk
}

func newChunkIndex() *chunkIndex {
	return &chunkIndex{collections: make(map[string][]domain.Chunk)}
}

func (idx *chunkIndex) load(ctx context.Context, s *Store, collection string) ([]domain.Chunk, error) {
	idx.mu.RLock()
	chunks, ok := idx.collections[collection]
	idx.mu.RUnlock()
	if ok {
		return chunks, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, source_id, embedding FROM chunks WHERE collection = ?", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loaded []domain.Chunk
	for rows.Next() {
		var (
			chunk domain.Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.Text, &chunk.SourceID, &blob); err != nil {
			return nil, err
		}
		chunk.Collection = collection
		chunk.Embedding = blobToVector(blob)
		if chunk.Embedding == nil {
			s.logger.Warn("skipping chunk with corrupt embedding blob",
				"collection", collection, "id", chunk.ID)
			continue
		}
		loaded = append(loaded, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.collections[collection] = loaded
	idx.mu.Unlock()
	return loaded, nil
}

func (idx *chunkIndex) invalidate(collection string) {
	idx.mu.Lock()
	delete(idx.collections, collection)
	idx.mu.Unlock()
}

var _ domain.VectorStore = (*Store)(nil)
