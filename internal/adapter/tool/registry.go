package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"venturedesk/internal/domain"
)

// Registry holds named tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry. Tools registered with a schema
// are wrapped with validation; a schema that fails to compile is logged and
// the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns error if name already registered.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
	} else {
		t = wrapped
	}

	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Schemas returns all tool schemas.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

const (
	defaultMaxRetries  = 2
	defaultExecTimeout = 30 * time.Second
	retryBackoffBase   = 200 * time.Millisecond
)

// Client dispatches tool calls with per-call timeouts and bounded retries.
// Parameter validation failures are fatal; only transient errors retry.
type Client struct {
	registry    *Registry
	maxRetries  int
	execTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a dispatching client over the registry. maxRetries bounds
// retries after the first attempt; zero timeout means the default.
func NewClient(registry *Registry, maxRetries int, execTimeout time.Duration, logger *slog.Logger) *Client {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if execTimeout <= 0 {
		execTimeout = defaultExecTimeout
	}
	return &Client{
		registry:    registry,
		maxRetries:  maxRetries,
		execTimeout: execTimeout,
		logger:      logger,
	}
}

// Registry exposes the underlying registry.
func (c *Client) Registry() *Registry { return c.registry }

// Dispatch resolves and executes a tool, retrying transient failures with
// exponential backoff and jitter. The returned invocation always carries the
// tool name, params, and total latency; Err is set on final failure.
func (c *Client) Dispatch(ctx context.Context, name string, params json.RawMessage) domain.ToolInvocation {
	inv := domain.ToolInvocation{ToolName: name, Params: params}
	start := time.Now()
	defer func() { inv.Latency = time.Since(start) }()

	t, err := c.registry.Get(name)
	if err != nil {
		inv.Err = err
		return inv
	}

	for attempt := 0; ; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
		result, err := t.Execute(execCtx, params)
		cancel()

		switch {
		case err == nil && (result == nil || !result.IsError):
			inv.Result = result
			return inv
		case err != nil && errors.Is(err, domain.ErrInvalidToolParams):
			inv.Err = err
			return inv
		case err != nil:
			inv.Err = fmt.Errorf("%w: %s: %v", domain.ErrToolFailure, name, err)
			if !classifyToolError(err) {
				return inv
			}
		default: // error ToolResult
			inv.Result = result
			inv.Err = fmt.Errorf("%w: %s: %s", domain.ErrToolFailure, name, result.Content)
			if !result.IsRetryable {
				return inv
			}
		}

		if attempt >= c.maxRetries || ctx.Err() != nil {
			return inv
		}

		backoff := retryBackoffBase << attempt
		backoff += time.Duration(rand.Int63n(int64(backoff / 2)))
		c.logger.Warn("tool call failed, retrying",
			"tool", name, "attempt", attempt+1, "backoff", backoff, "error", inv.Err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return inv
		}
	}
}
