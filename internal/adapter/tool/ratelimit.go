package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"venturedesk/internal/domain"
)

// RateLimiter implements a sliding-window rate limiter. It tracks timestamps
// of allowed calls and rejects new calls when the count within the window
// reaches the limit.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time // for testing
}

// NewRateLimiter creates a rate limiter that allows limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow returns true if a call is allowed under the rate limit, and records it.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	n := 0
	for _, t := range r.calls {
		if t.After(cutoff) {
			r.calls[n] = t
			n++
		}
	}
	r.calls = r.calls[:n]

	if len(r.calls) >= r.limit {
		return false
	}

	r.calls = append(r.calls, now)
	return true
}

// RateLimitedTool wraps a tool with a sliding-window rate limiter. A call
// over the limit fails with ErrToolUnavailable without touching the backend.
type RateLimitedTool struct {
	inner   domain.Tool
	limiter *RateLimiter
}

// WithRateLimit wraps t to allow at most limit executions per window.
// limit <= 0 disables limiting and returns t unchanged.
func WithRateLimit(t domain.Tool, limit int, window time.Duration) domain.Tool {
	if limit <= 0 {
		return t
	}
	return &RateLimitedTool{inner: t, limiter: NewRateLimiter(limit, window)}
}

func (t *RateLimitedTool) Name() string              { return t.inner.Name() }
func (t *RateLimitedTool) Description() string       { return t.inner.Description() }
func (t *RateLimitedTool) Schema() domain.ToolSchema { return t.inner.Schema() }

func (t *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if !t.limiter.Allow() {
		return nil, fmt.Errorf("%w: %s rate limit reached", domain.ErrToolUnavailable, t.inner.Name())
	}
	return t.inner.Execute(ctx, params)
}
