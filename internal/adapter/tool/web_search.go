package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 10
	defaultCacheTTL    = 15 * time.Minute
)

type searchCacheEntry struct {
	result    string
	expiresAt time.Time
}

// searchCache is a small TTL cache shared by the search tools. Founders ask
// the same competitive and market questions repeatedly within a session.
type searchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]searchCacheEntry
}

func newSearchCache(ttl time.Duration) *searchCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &searchCache{ttl: ttl, entries: make(map[string]searchCacheEntry)}
}

func (c *searchCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.result, true
}

func (c *searchCache) put(key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = searchCacheEntry{result: result, expiresAt: time.Now().Add(c.ttl)}

	// Lazy eviction once the cache grows.
	if len(c.entries) > 100 {
		now := time.Now()
		for k, v := range c.entries {
			if now.After(v.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
}

// WebSearchTool performs web searches via a pluggable SearchBackend. Results
// come back as a JSON array of {title, url, snippet} objects so callers can
// cite individual sources.
type WebSearchTool struct {
	backend SearchBackend
	cache   *searchCache
	logger  *slog.Logger
}

// NewWebSearchTool creates a web search tool backed by the given SearchBackend.
func NewWebSearchTool(backend SearchBackend, cacheTTL time.Duration, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{
		backend: backend,
		cache:   newSearchCache(cacheTTL),
		logger:  logger,
	}
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web for current information" }

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"},
				"count": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results (default: 5)"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Alias for count"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
	// MaxResults is an accepted alias for Count.
	MaxResults int `json:"max_results,omitempty"`
}

// resolveCount applies the count/max_results alias, the default, and the cap.
func resolveCount(count, maxResults int) int {
	if count <= 0 {
		count = maxResults
	}
	if count <= 0 {
		count = defaultSearchCount
	}
	if count > maxSearchCount {
		count = maxSearchCount
	}
	return count
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, fmt.Errorf("query must not be empty")
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			p.Count = resolveCount(p.Count, p.MaxResults)

			cacheKey := fmt.Sprintf("web|%s|%d", p.Query, p.Count)
			if cached, ok := t.cache.get(cacheKey); ok {
				t.logger.Debug("web search cache hit", "query", p.Query)
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return TextResult(cached), nil
			}

			results, err := t.backend.Search(ctx, p.Query, p.Count, "")
			if err != nil {
				return nil, err
			}
			if len(results) > p.Count {
				results = results[:p.Count]
			}

			data, err := json.Marshal(results)
			if err != nil {
				return nil, fmt.Errorf("marshal results: %v", err)
			}

			t.cache.put(cacheKey, string(data))
			t.logger.Debug("web search completed", "query", p.Query, "results", len(results))
			return TextResult(string(data)), nil
		},
	)
}

// ParseSearchResults decodes the JSON payload produced by the search tools.
func ParseSearchResults(content string) ([]SearchResult, error) {
	var results []SearchResult
	if err := json.Unmarshal([]byte(content), &results); err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	return results, nil
}
