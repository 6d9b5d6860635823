package vectorstore

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "knowledge.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func chunk(id string, vec ...float32) domain.Chunk {
	return domain.Chunk{ID: id, Text: "text for " + id, SourceID: "doc-1", Embedding: vec}
}

func TestCreateCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateCollection(ctx, "pitch", 3))
	require.NoError(t, s.CreateCollection(ctx, "pitch", 3), "same dimension is idempotent")

	err := s.CreateCollection(ctx, "pitch", 4)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pitch"}, names)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 3))

	err := s.Upsert(ctx, "pitch", chunk("c1", 1, 2))
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	err = s.Upsert(ctx, "ghost", chunk("c1", 1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestQueryRanksByCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 3))

	require.NoError(t, s.Upsert(ctx, "pitch", chunk("aligned", 1, 0, 0)))
	require.NoError(t, s.Upsert(ctx, "pitch", chunk("close", 0.9, 0.1, 0)))
	require.NoError(t, s.Upsert(ctx, "pitch", chunk("orthogonal", 0, 1, 0)))

	results, err := s.Query(ctx, "pitch", []float32{1, 0, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2, "orthogonal chunk filtered by min score")
	assert.Equal(t, "aligned", results[0].Chunk.ID)
	assert.Equal(t, "close", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "pitch", results[0].Chunk.Collection)
}

func TestQueryRespectsTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 2))

	for _, c := range []domain.Chunk{
		chunk("a", 1, 0), chunk("b", 0.9, 0.1), chunk("c", 0.8, 0.2), chunk("d", 0.7, 0.3),
	} {
		require.NoError(t, s.Upsert(ctx, "pitch", c))
	}

	results, err := s.Query(ctx, "pitch", []float32{1, 0}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueryFailsFastOnDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 3))

	_, err := s.Query(ctx, "pitch", []float32{1, 0}, 5, 0)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, err = s.Query(ctx, "ghost", []float32{1, 0, 0}, 5, 0)
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestQueryEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 2))

	results, err := s.Query(ctx, "pitch", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertInvalidatesIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 2))
	require.NoError(t, s.Upsert(ctx, "pitch", chunk("a", 1, 0)))

	results, err := s.Query(ctx, "pitch", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The index was loaded by the query above; a later upsert must be visible.
	require.NoError(t, s.Upsert(ctx, "pitch", chunk("b", 1, 0)))
	results, err = s.Query(ctx, "pitch", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUpsertBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "team", 2))

	batch := []domain.Chunk{chunk("a", 1, 0), chunk("b", 0, 1)}
	require.NoError(t, s.UpsertBatch(ctx, "team", batch))

	results, err := s.Query(ctx, "team", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)

	err = s.UpsertBatch(ctx, "team", []domain.Chunk{chunk("bad", 1, 2, 3)})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateCollection(ctx, "pitch", 2))

	require.NoError(t, s.Upsert(ctx, "pitch", domain.Chunk{ID: "a", Text: "old", Embedding: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, "pitch", domain.Chunk{ID: "a", Text: "new", Embedding: []float32{1, 0}}))

	results, err := s.Query(ctx, "pitch", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Chunk.Text)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "length mismatch")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{0, 0}), "zero vectors")
}

func TestBlobRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3}
	assert.Equal(t, vec, blobToVector(vectorToBlob(vec)))
	assert.Nil(t, blobToVector([]byte{1, 2, 3}), "truncated blob")
}
