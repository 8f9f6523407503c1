package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	mcpClientImplementation = &mcp.Implementation{
		Name:    "db-agent",
		Version: "1.0.0",
	}

	ErrNotConnected = errors.New("session not connected")
	ErrClosed       = errors.New("client closed")
)

type Client struct {
	log       *slog.Logger
	cfg       *Config
	session   *mcp.ClientSession
	sessionMu sync.RWMutex // protects session and closed
	closed    bool
	mcpClient *mcp.Client
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		log:       cfg.Logger.With("server", cfg.Name),
		cfg:       &cfg,
		mcpClient: mcp.NewClient(mcpClientImplementation, nil),
	}

	if err := client.connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.cfg.Name
}

func (c *Client) newTransport() mcp.Transport {
	if c.cfg.NewTransport != nil {
		return c.cfg.NewTransport()
	}

	if c.cfg.Command != "" {
		cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
		cmd.Stderr = os.Stderr
		if len(c.cfg.Env) > 0 {
			cmd.Env = os.Environ()
			keys := make([]string, 0, len(c.cfg.Env))
			for k := range c.cfg.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				cmd.Env = append(cmd.Env, k+"="+c.cfg.Env[k])
			}
		}
		return &mcp.CommandTransport{Command: cmd}
	}

	httpClient := &http.Client{Timeout: c.cfg.RequestTimeout}
	if c.cfg.Token != "" {
		httpClient.Transport = &tokenTransport{
			base:  http.DefaultTransport,
			token: c.cfg.Token,
		}
	}
	return &mcp.StreamableClientTransport{
		Endpoint:   c.cfg.Endpoint,
		HTTPClient: httpClient,
	}
}

// connect establishes a new session with the MCP server
func (c *Client) connect(ctx context.Context) error {
	session, err := c.mcpClient.Connect(ctx, c.newTransport(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %s: %w", c.cfg.Name, err)
	}

	c.sessionMu.Lock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.session = session
	c.sessionMu.Unlock()

	c.log.Info("mcp/client: connected to server", "command", c.cfg.Command, "endpoint", c.cfg.Endpoint)
	return nil
}

// reconnect drops the current session and connects again
func (c *Client) reconnect(ctx context.Context) error {
	c.log.Warn("mcp/client: attempting to reconnect")
	c.sessionMu.Lock()
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	c.sessionMu.Unlock()

	return c.connect(ctx)
}

func (c *Client) currentSession() (*mcp.ClientSession, error) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

// isConnectionError checks if an error is a connection error that warrants reconnection
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mcp.ErrConnectionClosed) || errors.Is(err, ErrNotConnected) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "client is closing") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset")
}

// withSession runs fn against the current session. Connection failures trigger a
// reconnect and are retried with exponential backoff; any other error is returned as is.
func withSession[T any](ctx context.Context, c *Client, op string, fn func(*mcp.ClientSession) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		session, err := c.currentSession()
		if err == nil {
			var res T
			res, err = fn(session)
			if err == nil {
				return res, nil
			}
		}
		if !isConnectionError(err) {
			return zero, backoff.Permanent(err)
		}

		c.log.Warn("mcp/client: connection error, attempting reconnect", "op", op, "error", err)
		if reconnectErr := c.reconnect(ctx); reconnectErr != nil {
			return zero, fmt.Errorf("failed to reconnect: %w (original error: %w)", reconnectErr, err)
		}
		return zero, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.cfg.MaxTries))
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	c.log.Debug("mcp/client: listing available tools")

	result, err := withSession(ctx, c, "list_tools", func(s *mcp.ClientSession) (*mcp.ListToolsResult, error) {
		return s.ListTools(ctx, &mcp.ListToolsParams{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		inputSchema, _ := t.InputSchema.(map[string]any)
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema,
		})
	}

	c.log.Debug("mcp/client: found tools", "count", len(tools))
	return tools, nil
}

// CallToolText calls a tool and joins its text content. The returned bool reports
// whether the server flagged the result as an error.
func (c *Client) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	c.log.Debug("mcp/client: calling tool", "name", name)

	result, err := withSession(ctx, c, "call_tool", func(s *mcp.ClientSession) (*mcp.CallToolResult, error) {
		return s.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		})
	})
	if err != nil {
		return "", true, fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	str := joinText(result.Content)
	if result.IsError {
		c.log.Warn("mcp/client: tool returned error result", "name", name, "error", str)
	} else {
		c.log.Debug("mcp/client: called tool", "name", name, "chars", len(str))
	}
	return str, result.IsError, nil
}

// ReadResource returns the text of the resource at uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	result, err := withSession(ctx, c, "read_resource", func(s *mcp.ClientSession) (*mcp.ReadResourceResult, error) {
		return s.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	})
	if err != nil {
		return "", fmt.Errorf("failed to read resource %s: %w", uri, err)
	}

	parts := make([]string, 0, len(result.Contents))
	for _, content := range result.Contents {
		if content.Text != "" {
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// GetPrompt renders a server prompt and joins the text of its messages.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	result, err := withSession(ctx, c, "get_prompt", func(s *mcp.ClientSession) (*mcp.GetPromptResult, error) {
		return s.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	})
	if err != nil {
		return "", fmt.Errorf("failed to get prompt %s: %w", name, err)
	}

	contents := make([]mcp.Content, 0, len(result.Messages))
	for _, msg := range result.Messages {
		contents = append(contents, msg.Content)
	}
	return joinText(contents), nil
}

func (c *Client) Close() error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.closed = true
	if c.session != nil {
		err := c.session.Close()
		c.session = nil
		return err
	}
	return nil
}

func joinText(contents []mcp.Content) string {
	var textParts []string
	for _, content := range contents {
		if textContent, ok := content.(*mcp.TextContent); ok {
			textParts = append(textParts, textContent.Text)
		}
	}
	return strings.Join(textParts, "\n")
}

// tokenTransport wraps an http.RoundTripper to add Authorization header
type tokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))
	return t.base.RoundTrip(req)
}
