package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/config"
	"venturedesk/internal/infra/tracer"
)

const (
	// maxBatchSize bounds one embeddings API call.
	maxBatchSize = 128
	// maxTextLen bounds a single input text, in bytes.
	maxTextLen = 32 * 1024
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// OpenAIOption configures the OpenAI embedding provider.
type OpenAIOption func(*OpenAIProvider)

// WithModel sets the embedding model.
func WithModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithDimensions sets the embedding dimensions.
func WithDimensions(dims int) OpenAIOption {
	return func(p *OpenAIProvider) { p.dims = dims }
}

// WithBaseURL sets a custom base URL for OpenAI-compatible endpoints.
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = client }
}

// OpenAIProvider implements domain.EmbeddingProvider against the OpenAI
// embeddings API or any compatible endpoint.
type OpenAIProvider struct {
	apiKey  string
	model   string
	dims    int
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		model:   "text-embedding-3-small",
		dims:    1536,
		baseURL: "https://api.openai.com/v1",
		client:  defaultHTTPClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds the configured embedder, wrapped in an LRU cache when
// cache_size is set.
func NewFromConfig(cfg config.EmbeddingConfig) domain.EmbeddingProvider {
	opts := []OpenAIOption{}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.Dimensions > 0 {
		opts = append(opts, WithDimensions(cfg.Dimensions))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return NewCachedEmbedder(NewOpenAIProvider(cfg.APIKey, opts...), cfg.CacheSize)
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []embedData `json:"data"`
}

type embedData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Embed implements domain.EmbeddingProvider. Results come back in input
// order regardless of API response ordering.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrInvalidInput)
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", domain.ErrInvalidInput, len(texts), maxBatchSize)
	}
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "embedding.embed",
		trace.WithAttributes(
			tracer.StringAttr("embedding.model", p.model),
			tracer.IntAttr("embedding.batch_size", len(texts)),
		),
	)
	defer span.End()

	body, err := json.Marshal(embedRequest{Input: texts, Model: p.model})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrEmbeddingFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrEmbeddingFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		tracer.RecordError(span, err)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrEmbeddingFailed, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 32*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrEmbeddingFailed, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: API error %d: %s", domain.ErrEmbeddingFailed, httpResp.StatusCode, string(respBody))
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrEmbeddingFailed, err)
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	result := make([][]float32, len(texts))
	var batch domain.BatchError
	for i := range texts {
		switch {
		case i >= len(resp.Data):
			batch.Items = append(batch.Items, domain.BatchItemError{
				Index: i,
				Err:   fmt.Errorf("no embedding returned"),
			})
		case p.dims > 0 && len(resp.Data[i].Embedding) != p.dims:
			batch.Items = append(batch.Items, domain.BatchItemError{
				Index: i,
				Err:   fmt.Errorf("%w: got %d dimensions, want %d", domain.ErrDimensionMismatch, len(resp.Data[i].Embedding), p.dims),
			})
		default:
			result[i] = resp.Data[i].Embedding
		}
	}
	if len(batch.Items) > 0 {
		tracer.RecordError(span, &batch)
		return result, &batch
	}

	tracer.SetOK(span)
	return result, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (p *OpenAIProvider) Dimensions() int { return p.dims }

// Name implements domain.EmbeddingProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

func validateTexts(texts []string) error {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is empty", domain.ErrInvalidInput, i)
		}
		if len(text) > maxTextLen {
			return fmt.Errorf("%w: text %d exceeds %d bytes", domain.ErrInvalidInput, i, maxTextLen)
		}
	}
	return nil
}
