package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/domain"
)

type countingEmbedder struct {
	calls int
	dims  int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(c.calls), 0, 0}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dims }
func (c *countingEmbedder) Name() string    { return "counting" }

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 4)

	first, err := cached.Embed(t.Context(), []string{"what is my TAM"})
	require.NoError(t, err)

	second, err := cached.Embed(t.Context(), []string{"what is my TAM"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)

	hits, misses := cached.(*CachedEmbedder).Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCachedEmbedderEvictsLRU(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 2)

	for _, q := range []string{"a", "b", "c"} { // "a" evicted at "c"
		_, err := cached.Embed(t.Context(), []string{q})
		require.NoError(t, err)
	}
	_, err := cached.Embed(t.Context(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)

	// "c" is still cached.
	_, err = cached.Embed(t.Context(), []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)
}

func TestCachedEmbedderBatchPassthrough(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 4)

	for range 2 {
		_, err := cached.Embed(t.Context(), []string{"a", "b"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	assert.Same(t, domain.EmbeddingProvider(inner), NewCachedEmbedder(inner, 0))
}

func TestCachedEmbedderConcurrent(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 8)

	done := make(chan error, 16)
	for i := range 16 {
		go func(i int) {
			_, err := cached.Embed(context.Background(), []string{fmt.Sprintf("q%d", i%4)})
			done <- err
		}(i)
	}
	for range 16 {
		require.NoError(t, <-done)
	}
}
