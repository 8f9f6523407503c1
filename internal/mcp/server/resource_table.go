package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/dbagent/internal/db"
	"github.com/malbeclabs/dbagent/internal/mcp/metrics"
)

const (
	MetadataURIPrefix   = "db://metadata/"
	SampleDataURIPrefix = "db://sample-data/"

	resourceMIMEType = "application/json"
)

// SampleData is the payload of a db://sample-data resource. A failed read is reported
// in Error with empty Columns and Rows.
type SampleData struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    []db.Row `json:"sample_rows"`
	Error   string   `json:"error,omitempty"`
}

func RegisterTableResources(log *slog.Logger, server *mcp.Server, database Database, sampleRows int) {
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "table_metadata",
		Title:       "Table metadata",
		Description: "Column names, types, nullability and defaults of a table.",
		MIMEType:    resourceMIMEType,
		URITemplate: MetadataURIPrefix + "{table_name}",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		table, err := tableFromURI(uri, MetadataURIPrefix)
		if err != nil {
			metrics.ResourceReadsTotal.WithLabelValues("metadata", "error").Inc()
			return nil, err
		}

		schema, err := database.DescribeTable(ctx, table)
		if err != nil {
			metrics.ResourceReadsTotal.WithLabelValues("metadata", "error").Inc()
			log.Debug("mcp/resource: failed to read metadata", "table", table, "error", err)
			if errors.Is(err, db.ErrTableNotFound) {
				return nil, mcp.ResourceNotFoundError(uri)
			}
			return nil, err
		}

		metrics.ResourceReadsTotal.WithLabelValues("metadata", "success").Inc()
		return jsonResource(uri, schema)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "table_sample_data",
		Title:       "Table sample data",
		Description: fmt.Sprintf("The first %d rows of a table.", sampleRows),
		MIMEType:    resourceMIMEType,
		URITemplate: SampleDataURIPrefix + "{table_name}",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		table, err := tableFromURI(uri, SampleDataURIPrefix)
		if err != nil {
			metrics.ResourceReadsTotal.WithLabelValues("sample_data", "error").Inc()
			return nil, err
		}

		data := SampleData{Table: table, Columns: []string{}, Rows: []db.Row{}}
		res, err := database.SampleRows(ctx, table, sampleRows)
		if err != nil {
			metrics.ResourceReadsTotal.WithLabelValues("sample_data", "error").Inc()
			log.Debug("mcp/resource: failed to read sample data", "table", table, "error", err)
			data.Error = err.Error()
			return jsonResource(uri, data)
		}

		metrics.ResourceReadsTotal.WithLabelValues("sample_data", "success").Inc()
		data.Columns = res.Columns
		data.Rows = res.Rows
		return jsonResource(uri, data)
	})
}

func tableFromURI(uri, prefix string) (string, error) {
	raw, ok := strings.CutPrefix(uri, prefix)
	if !ok || raw == "" {
		return "", fmt.Errorf("invalid resource uri %q", uri)
	}
	table, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid resource uri %q: %w", uri, err)
	}
	return table, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: resourceMIMEType,
			Text:     string(data),
		}},
	}, nil
}
