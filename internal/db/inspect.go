package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var ErrTableNotFound = errors.New("table not found")

const DefaultSampleRows = 5

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

type TableSchema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// ListTables returns the tables of the current schema, ordered by name.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	if cached, ok := d.cache.get(tablesCacheKey); ok {
		return append([]string(nil), cached.([]string)...), nil
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.listTablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	d.cache.set(tablesCacheKey, tables)
	return append([]string(nil), tables...), nil
}

// DescribeTable returns the columns of a table in declaration order.
func (d *DB) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}

	key := tableCacheKey(table)
	if cached, ok := d.cache.get(key); ok {
		schema := cached.(TableSchema)
		schema.Columns = append([]Column(nil), schema.Columns...)
		return &schema, nil
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.describeTableQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]Column, 0)
	for rows.Next() {
		var (
			col      Column
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	schema := TableSchema{Table: table, Columns: columns}
	d.cache.set(key, schema)

	out := schema
	out.Columns = append([]Column(nil), columns...)
	return &out, nil
}

// SampleRows reads up to limit rows of a table. The table must exist.
func (d *DB) SampleRows(ctx context.Context, table string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultSampleRows
	}
	if _, err := d.DescribeTable(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", pq.QuoteIdentifier(strings.TrimSpace(table)), limit)
	return d.queryRows(ctx, query, limit)
}
