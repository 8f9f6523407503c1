package agent

import (
	"context"
	"fmt"

	"github.com/malbeclabs/dbagent/internal/mcp/client"
)

// MCPToolClient exposes the tools of one MCP server as a ToolClient.
type MCPToolClient struct {
	client *client.Client
}

func NewMCPToolClient(c *client.Client) *MCPToolClient {
	return &MCPToolClient{client: c}
}

func (m *MCPToolClient) ListTools(ctx context.Context) ([]Tool, error) {
	mcpTools, err := m.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

func (m *MCPToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	return m.client.CallToolText(ctx, name, args)
}

// MultiToolClient aggregates multiple ToolClient implementations and routes
// tool calls to the appropriate client based on tool name.
type MultiToolClient struct {
	tools     []Tool
	toolIndex map[string]ToolClient
}

// NewMultiToolClient lists the tools of every client once and indexes them by name.
// A tool name offered by more than one client is an error.
func NewMultiToolClient(ctx context.Context, clients ...ToolClient) (*MultiToolClient, error) {
	m := &MultiToolClient{
		tools:     make([]Tool, 0),
		toolIndex: make(map[string]ToolClient),
	}

	for i, c := range clients {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools from client %d: %w", i, err)
		}

		for _, tool := range tools {
			if _, ok := m.toolIndex[tool.Name]; ok {
				return nil, fmt.Errorf("duplicate tool name %q: tool exists in multiple clients", tool.Name)
			}
			m.toolIndex[tool.Name] = c
			m.tools = append(m.tools, tool)
		}
	}

	return m, nil
}

// ListTools returns the combined list of tools from all clients.
func (m *MultiToolClient) ListTools(_ context.Context) ([]Tool, error) {
	return m.tools, nil
}

// CallToolText routes the tool call to the client that offers the tool.
func (m *MultiToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	c, ok := m.toolIndex[name]
	if !ok {
		return "", true, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return c.CallToolText(ctx, name, args)
}
