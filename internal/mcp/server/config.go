package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/dbagent/internal/db"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
	defaultListenAddr        = "127.0.0.1:8010"
)

// Database is the backend the tools run against. *db.DB implements it.
type Database interface {
	Query(ctx context.Context, sql string) (*db.Result, error)
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) (*db.TableSchema, error)
	SampleRows(ctx context.Context, table string, limit int) (*db.Result, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Logger *slog.Logger
	DB     Database

	Version           string
	Transport         string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedTokens     []string // Bearer tokens allowed on the HTTP transport
	SampleRows        int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DB == nil {
		return fmt.Errorf("database is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		return fmt.Errorf("unsupported transport %q (expected %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.SampleRows <= 0 {
		c.SampleRows = db.DefaultSampleRows
	}
	return nil
}
