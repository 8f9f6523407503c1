package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB is the single long-lived connection handle to the configured database.
type DB struct {
	log     *slog.Logger
	cfg     Config
	db      *sql.DB
	dialect Dialect
	cache   *schemaCache
}

// Open connects to the database named by cfg.URL and verifies the connection with SELECT 1.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialect, dsn, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}

	// One handle for the process lifetime. An in-memory sqlite or duckdb database lives only
	// as long as its connection, so the connection must never be recycled.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var result int
	if err := sqlDB.QueryRowContext(pingCtx, "SELECT 1").Scan(&result); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to test %s connection: %w", dialect, err)
	}
	if result != 1 {
		sqlDB.Close()
		return nil, fmt.Errorf("unexpected result from connection test: got %d, expected 1", result)
	}

	cfg.Logger.Info("db: connected", "dialect", dialect, "url", redactURL(cfg.URL))

	return &DB{
		log:     cfg.Logger,
		cfg:     cfg,
		db:      sqlDB,
		dialect: dialect,
		cache:   newSchemaCache(cfg.SchemaCacheTTL),
	}, nil
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Ping checks that the connection is still usable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	d.cache.invalidate()
	return d.db.Close()
}
