package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

// ImageSearchTool finds reference imagery (ad creatives, landing pages,
// product shots) via the search backend's image category.
type ImageSearchTool struct {
	backend SearchBackend
	cache   *searchCache
	logger  *slog.Logger
}

// NewImageSearchTool creates an image search tool backed by the given SearchBackend.
func NewImageSearchTool(backend SearchBackend, cacheTTL time.Duration, logger *slog.Logger) *ImageSearchTool {
	return &ImageSearchTool{
		backend: backend,
		cache:   newSearchCache(cacheTTL),
		logger:  logger,
	}
}

func (t *ImageSearchTool) Name() string        { return "image_search" }
func (t *ImageSearchTool) Description() string { return "Search for reference images" }

func (t *ImageSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The image search query"},
				"count": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results (default: 5)"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Alias for count"}
			},
			"required": ["query"]
		}`),
	}
}

type imageSearchParams struct {
	Query      string `json:"query"`
	Count      int    `json:"count,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *ImageSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.image_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p imageSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, fmt.Errorf("query must not be empty")
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			p.Count = resolveCount(p.Count, p.MaxResults)

			cacheKey := fmt.Sprintf("image|%s|%d", p.Query, p.Count)
			if cached, ok := t.cache.get(cacheKey); ok {
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return TextResult(cached), nil
			}

			results, err := t.backend.Search(ctx, p.Query, p.Count, "images")
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
			t.logger.Debug("image search completed", "query", p.Query, "results", len(results))
			return TextResult(string(data)), nil
		},
	)
}
