// Package dbtest provides a seeded in-memory database for tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/dbagent/internal/db"
)

// Tables lists the fixture tables in the order ListTables reports them.
var Tables = []string{"customers", "orders"}

const schema = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	tier TEXT NOT NULL DEFAULT 'standard'
);

CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	total REAL NOT NULL,
	status TEXT NOT NULL
);

INSERT INTO customers (id, name, email, tier) VALUES
	(1, 'Ada Lovelace', 'ada@example.com', 'gold'),
	(2, 'Grace Hopper', 'grace@example.com', 'standard'),
	(3, 'Edsger Dijkstra', NULL, 'standard');

INSERT INTO orders (id, customer_id, total, status) VALUES
	(10, 1, 120.5, 'shipped'),
	(11, 1, 35.0, 'pending'),
	(12, 2, 99.99, 'shipped'),
	(13, 3, 12.25, 'cancelled');
`

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New opens an in-memory sqlite database seeded with the fixture dataset.
func New(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(context.Background(), db.Config{
		Logger: Logger(),
		URL:    "sqlite://",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := database.Query(context.Background(), stmt)
		require.NoError(t, err)
	}
	return database
}
