package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

const (
	defaultPatentCount = 5
	maxPatentCount     = 20
	maxPatentBodySize  = 1 * 1024 * 1024
)

// PatentSearchTool queries the PatentsView full-text search API for granted
// patents matching a technology description.
type PatentSearchTool struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewPatentSearchTool creates a patent search tool against a PatentsView-style API.
func NewPatentSearchTool(baseURL, apiKey string, logger *slog.Logger) *PatentSearchTool {
	return &PatentSearchTool{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (t *PatentSearchTool) Name() string { return "patent_search" }
func (t *PatentSearchTool) Description() string {
	return "Search granted patents by title and abstract text"
}

func (t *PatentSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Technology description to search patents for"},
				"count": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results (default: 5)"}
			},
			"required": ["query"]
		}`),
	}
}

type patentSearchParams struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
}

// PatentResult is one granted patent returned by patent_search.
type PatentResult struct {
	PatentID string `json:"patent_id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Date     string `json:"date,omitempty"`
	URL      string `json:"url"`
}

type patentsViewResponse struct {
	Patents []struct {
		PatentID       string `json:"patent_id"`
		PatentTitle    string `json:"patent_title"`
		PatentAbstract string `json:"patent_abstract"`
		PatentDate     string `json:"patent_date"`
	} `json:"patents"`
	Error bool `json:"error"`
}

func (t *PatentSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.patent_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p patentSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, fmt.Errorf("query must not be empty")
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			if p.Count <= 0 {
				p.Count = defaultPatentCount
			}
			if p.Count > maxPatentCount {
				p.Count = maxPatentCount
			}

			results, err := t.search(ctx, p.Query, p.Count)
			if err != nil {
				return nil, err
			}

			data, err := json.Marshal(results)
			if err != nil {
				return nil, fmt.Errorf("marshal results: %v", err)
			}

			t.logger.Debug("patent search completed", "query", p.Query, "results", len(results))
			return TextResult(string(data)), nil
		},
	)
}

func (t *PatentSearchTool) search(ctx context.Context, query string, count int) ([]PatentResult, error) {
	q, err := json.Marshal(map[string]any{
		"_text_any": map[string]string{"patent_title": query},
	})
	if err != nil {
		return nil, fmt.Errorf("build query: %v", err)
	}
	fields := `["patent_id","patent_title","patent_abstract","patent_date"]`
	opts := fmt.Sprintf(`{"size":%d}`, count)

	reqURL := fmt.Sprintf("%s/patent/?q=%s&f=%s&o=%s",
		t.baseURL, url.QueryEscape(string(q)), url.QueryEscape(fields), url.QueryEscape(opts))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("X-Api-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPatentBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: patent API throttled", domain.ErrRateLimit)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("patent search failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var pv patentsViewResponse
	if err := json.Unmarshal(body, &pv); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]PatentResult, 0, len(pv.Patents))
	for _, p := range pv.Patents {
		if len(results) >= count {
			break
		}
		results = append(results, PatentResult{
			PatentID: p.PatentID,
			Title:    p.PatentTitle,
			Abstract: truncateText(p.PatentAbstract, 500),
			Date:     p.PatentDate,
			URL:      "https://patents.google.com/patent/US" + p.PatentID,
		})
	}
	return results, nil
}

// ParsePatentResults decodes the JSON payload produced by patent_search.
func ParsePatentResults(content string) ([]PatentResult, error) {
	var results []PatentResult
	if err := json.Unmarshal([]byte(content), &results); err != nil {
		return nil, fmt.Errorf("parse patent results: %w", err)
	}
	return results, nil
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
