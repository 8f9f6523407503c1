package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

var ErrEmptyQuery = errors.New("query is empty")

// Result is the outcome of a statement. Statements that return rows fill Columns and Rows;
// other statements only report the number of affected rows in RowCount.
type Result struct {
	Columns     []string `json:"columns"`
	Rows        []Row    `json:"rows"`
	RowCount    int      `json:"row_count"`
	ReturnsRows bool     `json:"returns_rows"`
	Truncated   bool     `json:"truncated,omitempty"`
}

type Row map[string]any

var (
	rowKeywords = map[string]struct{}{
		"SELECT":    {},
		"SHOW":      {},
		"EXPLAIN":   {},
		"VALUES":    {},
		"PRAGMA":    {},
		"DESCRIBE":  {},
		"DESC":      {},
		"TABLE":     {},
		"FROM":      {},
		"SUMMARIZE": {},
	}
	leadingKeywordRe = regexp.MustCompile(`^[\s(]*([A-Za-z]+)`)
)

// returnsRows reports whether the statement produces a result set. Comments, string literals
// and quoted identifiers are ignored.
func returnsRows(query string) bool {
	stripped := stripLiterals(query)
	m := leadingKeywordRe.FindStringSubmatch(stripped)
	if m == nil {
		return false
	}

	words := topLevelWords(stripped)
	if slices.Contains(words, "RETURNING") {
		return true
	}

	keyword := strings.ToUpper(m[1])
	if keyword == "WITH" {
		return withReturnsRows(words)
	}
	_, ok := rowKeywords[keyword]
	return ok
}

// withReturnsRows classifies a WITH statement by the first top-level statement keyword after
// its common table expressions.
func withReturnsRows(words []string) bool {
	for _, w := range words {
		switch w {
		case "SELECT", "VALUES", "TABLE":
			return true
		case "INSERT", "UPDATE", "DELETE", "MERGE":
			return false
		}
	}
	return true
}

// stripLiterals blanks out comments, quoted strings and quoted identifiers.
func stripLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); {
		switch {
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			b.WriteByte(' ')
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 4
			}
			b.WriteByte(' ')
		case query[i] == '\'' || query[i] == '"' || query[i] == '`':
			i = skipQuoted(query, i)
			b.WriteByte(' ')
		default:
			b.WriteByte(query[i])
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the quoted run starting at start. A doubled quote
// character is an escape.
func skipQuoted(s string, start int) int {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// topLevelWords returns the upper-cased words outside any parentheses.
func topLevelWords(stripped string) []string {
	var (
		words []string
		depth int
	)
	for i := 0; i < len(stripped); {
		c := stripped[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isWordByte(c):
			j := i
			for j < len(stripped) && isWordByte(stripped[j]) {
				j++
			}
			if depth == 0 {
				words = append(words, strings.ToUpper(stripped[i:j]))
			}
			i = j
		default:
			i++
		}
	}
	return words
}

func isWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// uniqueColumns suffixes repeated column names (id, id_2, id_3) so each value keeps its own
// key in a Row. Suffixes never shadow a name the statement already returns.
func uniqueColumns(columns []string) []string {
	reserved := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		reserved[c] = struct{}{}
	}

	used := make(map[string]struct{}, len(columns))
	out := make([]string, len(columns))
	for i, c := range columns {
		name := c
		if _, dup := used[name]; dup {
			for n := 2; ; n++ {
				name = fmt.Sprintf("%s_%d", c, n)
				_, taken := used[name]
				_, original := reserved[name]
				if !taken && !original {
					break
				}
			}
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}

// Query executes a single SQL statement. Non-row statements are committed immediately and
// invalidate the schema cache.
func (d *DB) Query(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if !returnsRows(query) {
		return d.exec(ctx, query)
	}
	return d.queryRows(ctx, query, d.cfg.MaxRows)
}

func (d *DB) exec(ctx context.Context, query string) (*Result, error) {
	d.log.Debug("db: executing statement", "sql", query)

	res, err := d.db.ExecContext(ctx, query)
	// DDL can succeed partially on some engines, so drop cached schema either way.
	d.cache.invalidate()
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		d.log.Debug("db: rows affected not available", "error", err)
		affected = 0
	}

	return &Result{
		Columns:  []string{},
		Rows:     []Row{},
		RowCount: int(affected),
	}, nil
}

func (d *DB) queryRows(ctx context.Context, query string, maxRows int, args ...any) (*Result, error) {
	d.log.Debug("db: running query", "sql", query)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	rawColumns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columns := uniqueColumns(rawColumns)

	resultRows := make([]Row, 0)
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(resultRows) >= maxRows {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &Result{
		Columns:     columns,
		Rows:        resultRows,
		RowCount:    len(resultRows),
		ReturnsRows: true,
		Truncated:   truncated,
	}, nil
}

func normalizeValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v
	case json.Marshaler:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return val
	}
}
