package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUnsupportedScheme = errors.New("unsupported database url scheme")

type Dialect string

const (
	DialectPostgres   Dialect = "postgres"
	DialectSQLite     Dialect = "sqlite"
	DialectDuckDB     Dialect = "duckdb"
	DialectClickHouse Dialect = "clickhouse"
)

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectSQLite:
		return "sqlite"
	case DialectDuckDB:
		return "duckdb"
	case DialectClickHouse:
		return "clickhouse"
	}
	return ""
}

func (d Dialect) listTablesQuery() string {
	switch d {
	case DialectSQLite:
		return `
			SELECT name
			FROM sqlite_master
			WHERE type = 'table'
				AND name NOT LIKE 'sqlite_%'
			ORDER BY name
		`
	case DialectClickHouse:
		return `
			SELECT name
			FROM system.tables
			WHERE database = currentDatabase()
				AND NOT is_temporary
			ORDER BY name
		`
	default:
		return `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = current_schema()
				AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`
	}
}

// describeTableQuery returns name, type, nullable ('YES'/'NO') and default for each column of
// the table bound to the single placeholder, in declaration order.
func (d Dialect) describeTableQuery() string {
	switch d {
	case DialectSQLite:
		return `
			SELECT
				name,
				type,
				CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END,
				dflt_value
			FROM pragma_table_info(?)
			ORDER BY cid
		`
	case DialectClickHouse:
		return `
			SELECT
				name,
				type,
				if(startsWith(type, 'Nullable'), 'YES', 'NO'),
				nullIf(default_expression, '')
			FROM system.columns
			WHERE database = currentDatabase()
				AND table = ?
			ORDER BY position
		`
	case DialectDuckDB:
		return `
			SELECT
				column_name,
				data_type,
				is_nullable,
				column_default
			FROM information_schema.columns
			WHERE table_schema = current_schema()
				AND table_name = ?
			ORDER BY ordinal_position
		`
	default:
		return `
			SELECT
				column_name,
				data_type,
				is_nullable,
				column_default
			FROM information_schema.columns
			WHERE table_schema = current_schema()
				AND table_name = $1
			ORDER BY ordinal_position
		`
	}
}

// parseURL maps a database URL to its dialect and the DSN understood by the dialect's driver.
func parseURL(raw string) (Dialect, string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse database url: %w", err)
	}
	if u.Scheme == "" {
		return "", "", fmt.Errorf("%w: missing scheme in %q", ErrUnsupportedScheme, redactURL(raw))
	}

	scheme, _, _ := strings.Cut(strings.ToLower(u.Scheme), "+")
	switch scheme {
	case "postgres", "postgresql":
		u.Scheme = "postgres"
		return DialectPostgres, u.String(), nil
	case "sqlite", "sqlite3":
		path := filePath(u)
		if path == "" || path == ":memory:" {
			return DialectSQLite, ":memory:", nil
		}
		if u.RawQuery != "" {
			return DialectSQLite, "file:" + path + "?" + u.RawQuery, nil
		}
		return DialectSQLite, path, nil
	case "duckdb":
		path := filePath(u)
		if path == ":memory:" {
			path = ""
		}
		if u.RawQuery != "" {
			return DialectDuckDB, path + "?" + u.RawQuery, nil
		}
		return DialectDuckDB, path, nil
	case "clickhouse":
		u.Scheme = "clickhouse"
		return DialectClickHouse, u.String(), nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// filePath follows the SQLAlchemy convention: sqlite:///relative.db and sqlite:////abs/path.db.
func filePath(u *url.URL) string {
	path := u.Host + u.Path
	if u.Host == "" {
		path = strings.TrimPrefix(u.Path, "/")
	}
	if u.Opaque != "" {
		path = u.Opaque
	}
	return path
}

// redactURL hides the password of a URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
