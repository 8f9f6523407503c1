package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/dbagent/internal/db"
	"github.com/malbeclabs/dbagent/internal/db/dbtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, database Database) *Server {
	t.Helper()
	if database == nil {
		database = dbtest.New(t)
	}
	s, err := New(Config{
		Logger:  testLogger(),
		DB:      database,
		Version: "test",
	})
	require.NoError(t, err)
	return s
}

// connect returns a client session attached to s over in-memory transports.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := t.Context()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func decodeText[T any](t *testing.T, content []mcp.Content) T {
	t.Helper()
	require.Len(t, content, 1)
	text, ok := content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", content[0])
	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func textOf(t *testing.T, content []mcp.Content) string {
	t.Helper()
	require.NotEmpty(t, content)
	text, ok := content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", content[0])
	return text.Text
}

var errDatabase = errors.New("database error")

type failingDB struct{}

func (failingDB) Query(context.Context, string) (*db.Result, error) { return nil, errDatabase }
func (failingDB) ListTables(context.Context) ([]string, error)      { return nil, errDatabase }
func (failingDB) DescribeTable(context.Context, string) (*db.TableSchema, error) {
	return nil, errDatabase
}
func (failingDB) SampleRows(context.Context, string, int) (*db.Result, error) {
	return nil, errDatabase
}
func (failingDB) Ping(context.Context) error { return errDatabase }

func newFixtureDB(t *testing.T) *db.DB {
	t.Helper()
	return dbtest.New(t)
}
