package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is an external capability invocable through the tool client.
// Tools are stateless and safe to invoke in parallel.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolSchema describes a tool's parameters as a JSON Schema document.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content     string `json:"content"`
	IsError     bool   `json:"is_error,omitempty"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

// ToolInvocation records one dispatched tool call. Stateless; created per
// call and discarded with the request.
type ToolInvocation struct {
	ToolName string          `json:"tool_name"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   *ToolResult     `json:"result,omitempty"`
	Err      error           `json:"-"`
	Latency  time.Duration   `json:"latency"`
}

// Succeeded reports whether the invocation produced a usable result.
func (ti *ToolInvocation) Succeeded() bool {
	return ti.Err == nil && ti.Result != nil && !ti.Result.IsError
}
