package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

const defaultAttemptTimeout = 45 * time.Second

// ExhaustedError is returned when every provider in the request-scoped list
// failed with a transient error. It carries the per-provider attempt records.
type ExhaustedError struct {
	Attempts []domain.ProviderAttempt
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %s", a.Provider, a.Reason))
	}
	return fmt.Sprintf("all providers exhausted: [%s]", strings.Join(reasons, "; "))
}

func (e *ExhaustedError) Unwrap() error { return domain.ErrProvidersExhausted }

// Gateway generates text from a prioritized, request-scoped list of LLM
// providers with per-attempt timeouts and failover. It holds no provider
// state and is safe for concurrent use by any number of in-flight requests.
type Gateway struct {
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewGateway creates a generation gateway. attemptTimeout bounds each
// provider attempt; zero means the default.
func NewGateway(attemptTimeout time.Duration, logger *slog.Logger) *Gateway {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &Gateway{attemptTimeout: attemptTimeout, logger: logger}
}

// Generate attempts providers strictly in the given order. A timeout,
// rate-limit, or 5xx-class error advances to the next provider; an auth
// failure or malformed-request error is raised immediately without trying
// further providers. Exhausting the list returns an *ExhaustedError.
// The returned attempt records are complete in both outcomes.
func (g *Gateway) Generate(ctx context.Context, req domain.ChatRequest, providers []domain.LLMProvider, params domain.GenerationParams) (*domain.ChatResponse, []domain.ProviderAttempt, error) {
	if len(providers) == 0 {
		return nil, nil, domain.NewDomainError("Gateway.Generate", domain.ErrProviderNotFound, "empty provider list")
	}

	if params.MaxTokens > 0 && req.MaxTokens == 0 {
		req.MaxTokens = params.MaxTokens
	}
	if params.Temperature > 0 && req.Temperature == 0 {
		req.Temperature = params.Temperature
	}
	attemptTimeout := params.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = g.attemptTimeout
	}

	ctx, span := tracer.StartSpan(ctx, "gateway.generate",
		trace.WithAttributes(tracer.IntAttr("gateway.providers", len(providers))),
	)
	defer span.End()

	attempts := make([]domain.ProviderAttempt, 0, len(providers))

	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			// Request deadline elapsed; no partial results.
			tracer.RecordError(span, err)
			return nil, attempts, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		start := time.Now()
		resp, err := provider.Chat(attemptCtx, req)
		latency := time.Since(start)
		cancel()

		if err == nil {
			attempts = append(attempts, domain.ProviderAttempt{
				Provider:   provider.Name(),
				Outcome:    domain.AttemptSuccess,
				Latency:    latency,
				TokensUsed: resp.Usage.TotalTokens,
			})
			span.SetAttributes(
				tracer.StringAttr("gateway.provider_used", provider.Name()),
				tracer.IntAttr("gateway.attempts", len(attempts)),
			)
			tracer.SetOK(span)
			if i > 0 {
				g.logger.Info("failover succeeded", "provider", provider.Name(), "attempt", i+1)
			}
			return resp, attempts, nil
		}

		// The attempt deadline firing is transient unavailability, not a
		// request-shape bug.
		if attemptCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}

		if domain.IsFatalProviderError(err) {
			attempts = append(attempts, domain.ProviderAttempt{
				Provider: provider.Name(),
				Outcome:  domain.AttemptFatal,
				Latency:  latency,
				Reason:   err.Error(),
			})
			g.logger.Error("provider failed with fatal error, aborting failover",
				"provider", provider.Name(), "error", err)
			tracer.RecordError(span, err)
			return nil, attempts, domain.WrapOp("Gateway.Generate", err)
		}

		attempts = append(attempts, domain.ProviderAttempt{
			Provider: provider.Name(),
			Outcome:  domain.AttemptTransient,
			Latency:  latency,
			Reason:   err.Error(),
		})
		g.logger.Warn("provider failed, advancing to next",
			"provider", provider.Name(), "error", err, "remaining", len(providers)-i-1)
	}

	exhausted := &ExhaustedError{Attempts: attempts}
	tracer.RecordError(span, exhausted)
	return nil, attempts, exhausted
}
