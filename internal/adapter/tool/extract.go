package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
	"venturedesk/internal/security"
)

const defaultExtractBodySize = 1 * 1024 * 1024 // 1MB

// ExtractBackend fetches a page and returns its title and readable text.
type ExtractBackend interface {
	Extract(ctx context.Context, pageURL string) (title, text string, err error)
	Name() string
}

// ExtractTool fetches a URL and returns its readable text content, with SSRF
// protection on the initial URL and every redirect hop.
type ExtractTool struct {
	backend ExtractBackend
	maxLen  int
	logger  *slog.Logger
}

// NewExtractTool creates a content extraction tool. backend may be the plain
// HTTP backend or a browser backend for script-rendered pages.
func NewExtractTool(backend ExtractBackend, logger *slog.Logger) *ExtractTool {
	return &ExtractTool{backend: backend, maxLen: 20000, logger: logger}
}

func (t *ExtractTool) Name() string { return "extract_content" }
func (t *ExtractTool) Description() string {
	return "Fetch a web page and extract its readable text"
}

func (t *ExtractTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The URL to extract content from"}
			},
			"required": ["url"]
		}`),
	}
}

type extractParams struct {
	URL string `json:"url"`
}

// ExtractedContent is the payload returned by extract_content.
type ExtractedContent struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

func (t *ExtractTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.extract_content", t.logger, params,
		func(ctx context.Context, span trace.Span, p extractParams) (any, error) {
			if err := ValidateURLField("url", p.URL); err != nil {
				return nil, err
			}
			if err := security.ValidateURL(p.URL); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("tool.url", p.URL))

			title, text, err := t.backend.Extract(ctx, p.URL)
			if err != nil {
				return nil, err
			}
			if len(text) > t.maxLen {
				text = text[:t.maxLen] + "..."
			}

			data, err := json.Marshal(ExtractedContent{URL: p.URL, Title: title, Text: text})
			if err != nil {
				return nil, fmt.Errorf("marshal content: %v", err)
			}

			t.logger.Debug("content extracted",
				"url", p.URL, "backend", t.backend.Name(), "chars", len(text))
			return TextResult(string(data)), nil
		},
	)
}

// HTTPExtractBackend fetches pages over plain HTTP with an SSRF-safe
// transport and strips markup down to readable text.
type HTTPExtractBackend struct {
	client      *http.Client
	maxBodySize int64
}

// NewHTTPExtractBackend creates the default extraction backend.
func NewHTTPExtractBackend(maxBodySize int64) *HTTPExtractBackend {
	if maxBodySize <= 0 {
		maxBodySize = defaultExtractBodySize
	}
	return &HTTPExtractBackend{
		client: &http.Client{
			Transport: security.NewSSRFSafeTransport(),
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return security.ValidateURL(req.URL.String())
			},
		},
		maxBodySize: maxBodySize,
	}
}

func (b *HTTPExtractBackend) Name() string { return "http" }

func (b *HTTPExtractBackend) Extract(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %v", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")
	req.Header.Set("User-Agent", "venturedesk/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch failed (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBodySize))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		return "", string(body), nil
	}

	title := extractTitle(string(body))
	text := htmlToText(string(body))
	return title, text, nil
}

func extractTitle(html string) string {
	lower := strings.ToLower(html)
	open := strings.Index(lower, "<title")
	if open < 0 {
		return ""
	}
	gt := strings.Index(lower[open:], ">")
	if gt < 0 {
		return ""
	}
	start := open + gt + 1
	end := strings.Index(lower[start:], "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(html[start : start+end])
}

// htmlToText strips tags, scripts, and styles, collapsing whitespace. Good
// enough for grounding an LLM; not a readability engine.
func htmlToText(html string) string {
	html = stripBlock(html, "script")
	html = stripBlock(html, "style")
	html = stripBlock(html, "noscript")

	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			sb.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// stripBlock removes <tag ...>...</tag> sections case-insensitively.
func stripBlock(html, tag string) string {
	lower := strings.ToLower(html)
	open := "<" + tag
	close := "</" + tag + ">"

	var sb strings.Builder
	for {
		start := strings.Index(lower, open)
		if start < 0 {
			sb.WriteString(html)
			break
		}
		end := strings.Index(lower[start:], close)
		if end < 0 {
			sb.WriteString(html[:start])
			break
		}
		sb.WriteString(html[:start])
		cut := start + end + len(close)
		html = html[cut:]
		lower = lower[cut:]
	}
	return sb.String()
}
