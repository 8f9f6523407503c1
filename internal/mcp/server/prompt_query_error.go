package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const PromptQueryError = "handle_query_error"

func RegisterQueryErrorPrompt(log *slog.Logger, server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        PromptQueryError,
		Title:       "Recover from a failed query",
		Description: "Guide the model through recovering from a failed SQL query.",
		Arguments: []*mcp.PromptArgument{
			{Name: "error_message", Description: "the error returned by the database", Required: true},
			{Name: "table_name", Description: "the table the query targeted"},
			{Name: "sql_query", Description: "the query that failed"},
		},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		errMsg := strings.TrimSpace(args["error_message"])
		if errMsg == "" {
			return nil, fmt.Errorf("error_message is required")
		}
		log.Debug("mcp/prompt: rendering query error prompt", "table", args["table_name"])

		return &mcp.GetPromptResult{
			Description: "Recovery steps for a failed SQL query",
			Messages: []*mcp.PromptMessage{{
				Role:    "user",
				Content: &mcp.TextContent{Text: QueryErrorPrompt(errMsg, args["table_name"], args["sql_query"])},
			}},
		}, nil
	})
}

// QueryErrorPrompt renders the recovery instructions for a failed query.
func QueryErrorPrompt(errMsg, table, query string) string {
	var sb strings.Builder
	if query != "" {
		fmt.Fprintf(&sb, "You attempted to run this SQL query:\n%s\n\n", query)
	}
	fmt.Fprintf(&sb, "It failed with the error:\n%s\n\n", errMsg)

	describe := "describe_table(table_name)"
	if table != "" {
		describe = fmt.Sprintf("describe_table(table_name=%q)", table)
	}
	sb.WriteString("Here are your options:\n")
	sb.WriteString("1. Call list_tables() to check available tables.\n")
	fmt.Fprintf(&sb, "2. Call %s to inspect schema of the target table.\n", describe)
	sb.WriteString("3. Once you have correct schema/columns, craft a corrected SQL and call run_sql().\n")
	sb.WriteString("Which step will you take?")
	return sb.String()
}
