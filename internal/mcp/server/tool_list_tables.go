package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/dbagent/internal/mcp/metrics"
)

const ToolListTables = "list_tables"

type ListTablesInput struct{}

type ListTablesOutput struct {
	TableList []string `json:"tableList" jsonschema:"names of the tables in the connected database"`
}

func RegisterListTablesTool(log *slog.Logger, server *mcp.Server, database Database) error {
	req, err := jsonschema.For[ListTablesInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list tables input schema: %w", err)
	}

	res, err := jsonschema.For[ListTablesOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list tables output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         ToolListTables,
		Title:        "List tables",
		Description:  "List the names of all tables in the connected database.",
		InputSchema:  req,
		OutputSchema: res,
		Annotations:  &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
		startTime := time.Now()
		tables, err := database.ListTables(ctx)
		metrics.ObserveToolCall(ToolListTables, err != nil, time.Since(startTime).Seconds())

		if err != nil {
			log.Warn("mcp/tool: failed to list tables", "error", err)
			return nil, ListTablesOutput{}, fmt.Errorf("failed to list tables: %w", err)
		}
		log.Debug("mcp/tool: listed tables", "count", len(tables))

		if tables == nil {
			tables = []string{}
		}
		return nil, ListTablesOutput{TableList: tables}, nil
	})
	return nil
}
