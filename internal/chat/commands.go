package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/malbeclabs/dbagent/internal/db"
	"github.com/malbeclabs/dbagent/internal/mcp/server"
)

func (r *REPL) listTables(ctx context.Context) error {
	var out server.ListTablesOutput
	if err := r.callTool(ctx, server.ToolListTables, map[string]any{}, &out); err != nil {
		return err
	}
	if len(out.TableList) == 0 {
		fmt.Fprintln(r.out, "No tables.")
		return nil
	}
	for _, table := range out.TableList {
		fmt.Fprintln(r.out, table)
	}
	return nil
}

func (r *REPL) describeTable(ctx context.Context, table string) error {
	if table == "" {
		return errors.New(`usage: \describe <table>`)
	}

	var out server.DescribeTableOutput
	if err := r.callTool(ctx, server.ToolDescribeTable, map[string]any{"table_name": table}, &out); err != nil {
		return err
	}

	rows := make([][]string, 0, len(out.Columns))
	for _, col := range out.Columns {
		rows = append(rows, []string{col.Name, col.Type, yesNo(col.Nullable), formatDefault(col.Default)})
	}
	renderTable(r.out, []string{"Column", "Type", "Nullable", "Default"}, rows)
	return nil
}

func (r *REPL) runSQL(ctx context.Context, query string) error {
	if query == "" {
		return errors.New(`usage: \sql <query>`)
	}

	text, _, err := r.cfg.Tools.CallToolText(ctx, server.ToolRunSQL, map[string]any{"sql_query": query})
	if err != nil {
		return err
	}
	var out server.RunSQLOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return fmt.Errorf("unexpected run_sql result: %s", text)
	}
	if !out.Success {
		return errors.New(out.Error)
	}

	if len(out.Columns) == 0 {
		fmt.Fprintf(r.out, "OK, %d row(s) affected.\n", out.RowCount)
		return nil
	}

	renderTable(r.out, out.Columns, formatRows(out.Columns, out.Rows))
	suffix := ""
	if out.Truncated {
		suffix = " (truncated)"
	}
	fmt.Fprintf(r.out, "(%d row(s))%s\n", out.RowCount, suffix)
	return nil
}

// callTool runs a tool and decodes its JSON result into v. Tool errors are returned as errors.
func (r *REPL) callTool(ctx context.Context, name string, args map[string]any, v any) error {
	text, isErr, err := r.cfg.Tools.CallToolText(ctx, name, args)
	if err != nil {
		return err
	}
	if isErr {
		return errors.New(text)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("unexpected %s result: %w", name, err)
	}
	return nil
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

func formatRows(columns []string, rows []db.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, formatValue(row[col]))
		}
		out = append(out, cells)
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; print integers without a fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

func formatDefault(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
