package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/schema"
	"github.com/lib/pq"
)

// RunCopy replaces the destination table with the current contents of the
// source table. A source with zero rows truncates an existing destination
// and never creates a new one.
func (c *Client) RunCopy(ctx context.Context, src reconcile.SourceHandle, dst reconcile.DestHandle, table string) (reconcile.LoadResult, error) {
	result := reconcile.LoadResult{
		Table:       table,
		Destination: dst.Dataset + "." + table,
		StartedAt:   c.now(),
	}

	source, err := c.db(ctx, src.DSN)
	if err != nil {
		return result, err
	}

	target, err := c.db(ctx, dst.DSN)
	if err != nil {
		return result, err
	}

	columns, err := inferSchema(ctx, source, SourceSchema, table)
	if err != nil {
		return result, err
	}

	if len(columns) == 0 {
		return result, fmt.Errorf("source table %s.%s not found", SourceSchema, table)
	}

	rows, err := source.QueryContext(ctx, selectStatement(table, columns))
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return result, fmt.Errorf("failed to read %s: %w", table, err)
		}

		if err := truncateIfExists(ctx, target, dst.Dataset, table); err != nil {
			return result, err
		}

		result.FinishedAt = c.now()
		c.logger.InfoContext(ctx, "Source table is empty", "table", table)

		return result, nil
	}

	loaded, err := c.load(ctx, target, dst.Dataset, table, columns, rows)
	if err != nil {
		return result, err
	}

	result.RowsLoaded = loaded
	result.FinishedAt = c.now()

	return result, nil
}

// load writes the positioned rows cursor and everything after it into a
// freshly recreated destination table inside one transaction.
func (c *Client) load(ctx context.Context, target *sql.DB, dataset, table string, columns schema.Schema, rows *sql.Rows) (int64, error) {
	tx, err := target.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load of %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range []string{
		CreateSchemaStatement(dataset),
		"DROP TABLE IF EXISTS " + qualified(dataset, table),
		CreateTableStatement(dataset, table, schema.ToWarehouse(columns), false),
	} {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return 0, fmt.Errorf("failed to prepare %s.%s: %w", dataset, table, err)
		}
	}

	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(dataset, table, names...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy into %s.%s: %w", dataset, table, err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))

	for i := range values {
		pointers[i] = &values[i]
	}

	var loaded int64

	for {
		if err := rows.Scan(pointers...); err != nil {
			_ = stmt.Close()

			return 0, fmt.Errorf("failed to scan %s: %w", table, err)
		}

		if _, err := stmt.ExecContext(ctx, copyValues(columns, values)...); err != nil {
			_ = stmt.Close()

			return 0, fmt.Errorf("failed to copy row into %s.%s: %w", dataset, table, err)
		}

		loaded++

		if !rows.Next() {
			break
		}
	}

	if err := rows.Err(); err != nil {
		_ = stmt.Close()

		return 0, fmt.Errorf("failed to read %s: %w", table, err)
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()

		return 0, fmt.Errorf("failed to flush copy into %s.%s: %w", dataset, table, err)
	}

	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy into %s.%s: %w", dataset, table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load of %s.%s: %w", dataset, table, err)
	}

	c.logger.InfoContext(ctx, "Loaded table", "dataset", dataset, "table", table, "rows", loaded)

	return loaded, nil
}

func truncateIfExists(ctx context.Context, target *sql.DB, dataset, table string) error {
	exists, err := tableExists(ctx, target, dataset, table)
	if err != nil || !exists {
		return err
	}

	if _, err := target.ExecContext(ctx, "TRUNCATE TABLE "+qualified(dataset, table)); err != nil {
		return fmt.Errorf("failed to truncate %s.%s: %w", dataset, table, err)
	}

	return nil
}

func selectStatement(table string, columns schema.Schema) string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = pq.QuoteIdentifier(column.Name)
	}

	return "SELECT " + strings.Join(names, ", ") + " FROM " + qualified(SourceSchema, table)
}

// copyValues turns driver byte slices back into text for every column that
// is not bytea, so COPY does not hex-encode them.
func copyValues(columns schema.Schema, values []any) []any {
	out := make([]any, len(values))

	for i, value := range values {
		if raw, ok := value.([]byte); ok && columns[i].DataType != "bytea" {
			out[i] = string(raw)

			continue
		}

		out[i] = value
	}

	return out
}
