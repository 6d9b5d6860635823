package domain

import (
	"context"
	"time"
)

// LLMProvider generates chat completions. Implementations must be safe for
// concurrent use; the gateway shares one instance across in-flight requests.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// AttemptOutcome classifies how a single provider attempt ended.
type AttemptOutcome string

const (
	AttemptSuccess   AttemptOutcome = "success"
	AttemptTransient AttemptOutcome = "transient_error"
	AttemptFatal     AttemptOutcome = "fatal_error"
)

// ProviderAttempt records one attempt against one provider during a gateway
// call. Attempts are appended in sequence order and never reordered.
type ProviderAttempt struct {
	Provider   string         `json:"provider"`
	Outcome    AttemptOutcome `json:"outcome"`
	Latency    time.Duration  `json:"latency"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}
