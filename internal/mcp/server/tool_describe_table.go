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

const ToolDescribeTable = "describe_table"

type DescribeTableInput struct {
	TableName string `json:"table_name" jsonschema:"name of the table to describe"`
}

type DescribeTableOutput struct {
	Table   string      `json:"table"`
	Columns []db.Column `json:"columns"`
}

func RegisterDescribeTableTool(log *slog.Logger, server *mcp.Server, database Database) error {
	req, err := jsonschema.For[DescribeTableInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create describe table input schema: %w", err)
	}

	res, err := jsonschema.For[DescribeTableOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create describe table output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         ToolDescribeTable,
		Title:        "Describe table",
		Description:  "Describe the columns of a table: name, type, nullability and default value.",
		InputSchema:  req,
		OutputSchema: res,
		Annotations:  &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
		startTime := time.Now()
		schema, err := database.DescribeTable(ctx, in.TableName)
		metrics.ObserveToolCall(ToolDescribeTable, err != nil, time.Since(startTime).Seconds())

		if err != nil {
			log.Warn("mcp/tool: failed to describe table", "table", in.TableName, "error", err)
			return nil, DescribeTableOutput{}, err
		}

		columns := schema.Columns
		if columns == nil {
			columns = []db.Column{}
		}
		return nil, DescribeTableOutput{Table: schema.Table, Columns: columns}, nil
	})
	return nil
}
