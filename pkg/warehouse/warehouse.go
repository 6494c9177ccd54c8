// Package warehouse implements the copy, inspection and DDL calls of the sync
// reconciler on PostgreSQL, for both the relational source and the warehouse.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/schema"
)

// SourceSchema is the namespace the source tables live in.
const SourceSchema = "public"

// Client keeps one connection pool per DSN.
type Client struct {
	logger *slog.Logger
	mu     sync.Mutex
	pools  map[string]*sql.DB
	now    func() time.Time
}

func New(logger *slog.Logger) *Client {
	return &Client{
		logger: logger.With("module", "warehouse"),
		pools:  make(map[string]*sql.DB),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) db(ctx context.Context, dsn string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if database, ok := c.pools[dsn]; ok {
		return database, nil
	}

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c.pools[dsn] = database

	return database, nil
}

// Close closes every pool opened by the client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error

	for dsn, database := range c.pools {
		if err := database.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		delete(c.pools, dsn)
	}

	return firstErr
}

// InferSourceSchema reads the column list of table from information_schema.
// A table that does not exist yields an empty schema.
func (c *Client) InferSourceSchema(ctx context.Context, src reconcile.SourceHandle, table string) (schema.Schema, error) {
	database, err := c.db(ctx, src.DSN)
	if err != nil {
		return nil, err
	}

	return inferSchema(ctx, database, SourceSchema, table)
}

func inferSchema(ctx context.Context, database *sql.DB, namespace, table string) (schema.Schema, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, namespace, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s.%s: %w", namespace, table, err)
	}
	defer rows.Close()

	var columns schema.Schema

	for rows.Next() {
		var (
			column   schema.Column
			udtName  string
			nullable string
		)

		if err := rows.Scan(&column.Name, &column.DataType, &udtName, &nullable, &column.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s.%s: %w", namespace, table, err)
		}

		column.Nullable = nullable == "YES"
		if strings.EqualFold(column.DataType, "ARRAY") {
			column.ElementType = udtName
		}

		columns = append(columns, column)
	}

	return columns, rows.Err()
}

// TableExists reports whether table exists in the destination dataset.
func (c *Client) TableExists(ctx context.Context, dst reconcile.DestHandle, table string) (bool, error) {
	database, err := c.db(ctx, dst.DSN)
	if err != nil {
		return false, err
	}

	return tableExists(ctx, database, dst.Dataset, table)
}

func tableExists(ctx context.Context, database *sql.DB, dataset, table string) (bool, error) {
	var exists bool

	err := database.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, dataset, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", dataset, table, err)
	}

	return exists, nil
}

// CreateEmptyTable creates the dataset and table when they are missing.
func (c *Client) CreateEmptyTable(ctx context.Context, dst reconcile.DestHandle, table string, fields []schema.Field) error {
	database, err := c.db(ctx, dst.DSN)
	if err != nil {
		return err
	}

	for _, statement := range []string{
		CreateSchemaStatement(dst.Dataset),
		CreateTableStatement(dst.Dataset, table, fields, true),
	} {
		if _, err := database.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to create table %s.%s: %w", dst.Dataset, table, err)
		}
	}

	c.logger.InfoContext(ctx, "Created table", "dataset", dst.Dataset, "table", table, "columns", len(fields))

	return nil
}
