package embedding

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"venturedesk/internal/domain"
)

type cacheEntry struct {
	key uint64
	vec []float32
}

// CachedEmbedder wraps an EmbeddingProvider with an LRU cache keyed on text
// hash. Query-time embeds repeat heavily across requests (the same founder
// question phrased the same way), so single-text calls are cached; batch
// calls pass through since those are ingestion-time and rarely repeat.
type CachedEmbedder struct {
	inner   domain.EmbeddingProvider
	maxSize int

	mu    sync.Mutex
	index map[uint64]*list.Element
	order *list.List // most recently used at back

	hits   uint64
	misses uint64
}

// NewCachedEmbedder wraps inner with an LRU cache of maxSize entries.
// maxSize <= 0 disables caching and returns inner unchanged.
func NewCachedEmbedder(inner domain.EmbeddingProvider, maxSize int) domain.EmbeddingProvider {
	if maxSize <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner:   inner,
		maxSize: maxSize,
		index:   make(map[uint64]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Embed implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.Embed(ctx, texts)
	}

	key := hashText(texts[0])

	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		c.order.MoveToBack(elem)
		vec := elem.Value.(*cacheEntry).vec
		c.hits++
		c.mu.Unlock()
		return [][]float32{vec}, nil
	}
	c.misses++
	c.mu.Unlock()

	result, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || result[0] == nil {
		return result, nil
	}

	c.mu.Lock()
	c.put(key, result[0])
	c.mu.Unlock()
	return result, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Name implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Stats returns cumulative cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// put inserts under c.mu, evicting the least recently used entry at capacity.
func (c *CachedEmbedder) put(key uint64, vec []float32) {
	if elem, exists := c.index[key]; exists {
		c.order.MoveToBack(elem)
		elem.Value.(*cacheEntry).vec = vec
		return
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
	c.index[key] = c.order.PushBack(&cacheEntry{key: key, vec: vec})
}

var _ domain.EmbeddingProvider = (*CachedEmbedder)(nil)
