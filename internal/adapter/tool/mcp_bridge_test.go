package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMCPClient struct {
	tools    []mcp.Tool
	listErr  error
	callFunc func(request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed   bool
}

func (f *fakeMCPClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeMCPClient) CallTool(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return f.callFunc(request)
}

func (f *fakeMCPClient) Close() error {
	f.closed = true
	return nil
}

func TestMCPBridgeDiscoversAndNamespacesTools(t *testing.T) {
	client := &fakeMCPClient{
		tools: []mcp.Tool{
			{Name: "market-sizing", Description: "Estimate market size"},
			{Name: "cap_table", Description: ""},
		},
	}

	b, err := newMCPBridgeWithClients(t.Context(),
		[]mcpServerConn{{name: "founder-kit", client: client}}, testLogger())
	require.NoError(t, err)

	tools := b.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "mcp_founder_kit_market_sizing", tools[0].Name())
	assert.Equal(t, "Estimate market size", tools[0].Description())
	assert.Contains(t, tools[1].Description(), "cap_table")
}

func TestMCPBridgePartialDiscoveryFailure(t *testing.T) {
	good := &fakeMCPClient{tools: []mcp.Tool{{Name: "ok"}}}
	bad := &fakeMCPClient{listErr: errors.New("connection refused")}

	b, err := newMCPBridgeWithClients(t.Context(), []mcpServerConn{
		{name: "up", client: good},
		{name: "down", client: bad},
	}, testLogger())
	require.NoError(t, err, "one live server is enough")
	assert.Len(t, b.Tools(), 1)
}

func TestMCPBridgeAllServersFail(t *testing.T) {
	bad := &fakeMCPClient{listErr: errors.New("connection refused")}
	_, err := newMCPBridgeWithClients(t.Context(),
		[]mcpServerConn{{name: "down", client: bad}}, testLogger())
	require.Error(t, err)
}

func TestMCPToolAdapterExecute(t *testing.T) {
	client := &fakeMCPClient{
		tools: []mcp.Tool{{Name: "market-sizing"}},
		callFunc: func(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			assert.Equal(t, "market-sizing", req.Params.Name)
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "TAM: $4B"}},
			}, nil
		},
	}

	adapter := newMCPToolAdapter("kit", client, client.tools[0], testLogger())
	result, err := adapter.Execute(t.Context(), json.RawMessage(`{"segment": "smb"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "TAM: $4B", result.Content)
}

func TestMCPToolAdapterCallErrorIsRetryable(t *testing.T) {
	client := &fakeMCPClient{
		callFunc: func(_ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("stream closed")
		},
	}
	adapter := newMCPToolAdapter("kit", client, mcp.Tool{Name: "x"}, testLogger())

	result, err := adapter.Execute(t.Context(), nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, result.IsRetryable)
}
