package client

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultRequestTimeout = 120 * time.Second
	defaultMaxTries       = 3
)

type Config struct {
	Logger *slog.Logger

	// Name identifies the server in logs and tool routing.
	Name string

	// Command launches a local server speaking MCP over stdio.
	Command string
	Args    []string
	Env     map[string]string

	// Endpoint connects to a server over Streamable HTTP.
	Endpoint       string
	Token          string // Optional Bearer token for authentication
	RequestTimeout time.Duration

	// NewTransport overrides Command and Endpoint. It is called on every (re)connect.
	NewTransport func() mcp.Transport

	MaxTries uint
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.NewTransport == nil && c.Command == "" && c.Endpoint == "" {
		return fmt.Errorf("command or endpoint is required")
	}
	if c.Command != "" && c.Endpoint != "" {
		return fmt.Errorf("command and endpoint are mutually exclusive")
	}
	if c.Name == "" {
		c.Name = "default"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	return nil
}
