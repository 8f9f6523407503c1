package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/dbagent/internal/db"
	"github.com/malbeclabs/dbagent/internal/mcp/metrics"
)

const ToolRunSQL = "run_sql"

type RunSQLInput struct {
	SQLQuery string `json:"sql_query" jsonschema:"the SQL statement to execute"`
}

// RunSQLOutput is returned for every run_sql call. Execution failures are reported
// with Success false and the driver message in Error rather than as protocol errors.
type RunSQLOutput struct {
	Success   bool     `json:"success"`
	SQL       string   `json:"sql"`
	RowCount  int      `json:"row_count"`
	Columns   []string `json:"columns,omitempty"`
	Rows      []db.Row `json:"rows,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func RegisterRunSQLTool(log *slog.Logger, server *mcp.Server, database Database) error {
	req, err := jsonschema.For[RunSQLInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create run sql input schema: %w", err)
	}

	res, err := jsonschema.For[RunSQLOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create run sql output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:  ToolRunSQL,
		Title: "Run SQL",
		Description: "Execute a SQL statement against the connected database. " +
			"Statements that return rows report their columns and rows; other statements report the number of affected rows. " +
			"On failure the result has success=false and the database error message.",
		InputSchema:  req,
		OutputSchema: res,
		Annotations:  &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RunSQLInput) (*mcp.CallToolResult, RunSQLOutput, error) {
		log.Debug("mcp/tool: handling run_sql", "sql", in.SQLQuery)

		startTime := time.Now()
		out := runSQL(ctx, database, in.SQLQuery)
		metrics.ObserveToolCall(ToolRunSQL, !out.Success, time.Since(startTime).Seconds())

		if !out.Success {
			log.Info("mcp/tool: run_sql failed", "sql", in.SQLQuery, "error", out.Error)
			return &mcp.CallToolResult{IsError: true}, out, nil
		}
		return nil, out, nil
	})
	return nil
}

func runSQL(ctx context.Context, database Database, query string) RunSQLOutput {
	res, err := database.Query(ctx, query)
	if err != nil {
		return RunSQLOutput{
			Success: false,
			SQL:     query,
			Error:   err.Error(),
		}
	}

	out := RunSQLOutput{
		Success:   true,
		SQL:       query,
		RowCount:  res.RowCount,
		Truncated: res.Truncated,
	}
	if res.ReturnsRows {
		out.Columns = res.Columns
		out.Rows = res.Rows
	}
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
