package domain

import "context"

// EmbeddingProvider turns text into fixed-dimension vectors.
// Embed is all-or-nothing per batch item: a failed item is reported in the
// returned BatchError, not collapsed into a single opaque error.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// BatchItemError reports a failure for a single item of an embedding batch.
type BatchItemError struct {
	Index int
	Err   error
}

// BatchError aggregates per-item embedding failures.
type BatchError struct {
	Items []BatchItemError
}

func (e *BatchError) Error() string {
	if len(e.Items) == 1 {
		return "embedding batch: 1 item failed"
	}
	return "embedding batch: multiple items failed"
}

func (e *BatchError) Unwrap() error { return ErrEmbeddingFailed }
