//go:build integration
// +build integration

package warehouse

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/assetflow/pkg/otelhelper"
	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		_ = postgresContainer.Terminate(context.Background())
	}

	os.Exit(code)
}

func setupClient(t *testing.T) (*Client, reconcile.SourceHandle, reconcile.DestHandle, context.Context) {
	ctx := context.Background()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error
		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("assetflow_warehouse_test"),
			postgres.WithUsername("assetflow"),
			postgres.WithPassword("assetflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(logger)

	t.Cleanup(func() { _ = client.Close() })

	database, err := client.db(ctx, dsn)
	require.NoError(t, err)

	for _, statement := range []string{
		`DROP SCHEMA IF EXISTS lana_dw CASCADE`,
		`DROP TABLE IF EXISTS public.orders`,
		`DROP TABLE IF EXISTS public.users`,
		`CREATE TABLE public.orders (id INTEGER NOT NULL, amount NUMERIC(10,2), tags TEXT[])`,
		`CREATE TABLE public.users (id BIGINT NOT NULL, email TEXT)`,
		`INSERT INTO public.users (id, email) VALUES (1, 'a@example.com'), (2, NULL)`,
	} {
		_, err := database.ExecContext(ctx, statement)
		require.NoError(t, err)
	}

	return client,
		reconcile.SourceHandle{Name: "lana_core_pg", DSN: dsn},
		reconcile.DestHandle{Name: "dw_bq", DSN: dsn, Dataset: "lana_dw"},
		ctx
}

func TestClient_InferSourceSchema(t *testing.T) {
	client, src, _, ctx := setupClient(t)

	columns, err := client.InferSourceSchema(ctx, src, "orders")
	require.NoError(t, err)
	require.Len(t, columns, 3)

	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, "integer", columns[0].DataType)
	assert.False(t, columns[0].Nullable)
	assert.Equal(t, "numeric", columns[1].DataType)
	assert.True(t, columns[1].Nullable)
	assert.Equal(t, "ARRAY", columns[2].DataType)
	assert.Equal(t, "_text", columns[2].ElementType)

	missing, err := client.InferSourceSchema(ctx, src, "ghost")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestClient_RunCopyLoadsRows(t *testing.T) {
	client, src, dst, ctx := setupClient(t)

	result, err := client.RunCopy(ctx, src, dst, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsLoaded)
	assert.Equal(t, "lana_dw.users", result.Destination)

	exists, err := client.TableExists(ctx, dst, "users")
	require.NoError(t, err)
	assert.True(t, exists)

	// a second copy replaces the contents
	result, err = client.RunCopy(ctx, src, dst, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsLoaded)

	database, err := client.db(ctx, dst.DSN)
	require.NoError(t, err)

	var count int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT count(*) FROM lana_dw.users`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestClient_EmptySourceIsReconciled(t *testing.T) {
	client, src, dst, ctx := setupClient(t)

	result, err := client.RunCopy(ctx, src, dst, "orders")
	require.NoError(t, err)
	assert.Zero(t, result.RowsLoaded)

	exists, err := client.TableExists(ctx, dst, "orders")
	require.NoError(t, err)
	assert.False(t, exists)

	reconciler := reconcile.New(client, client, client, nil, otelhelper.NoopTracer(), client.logger)

	_, err = reconciler.Sync(ctx, src, dst, "orders")
	require.NoError(t, err)

	exists, err = client.TableExists(ctx, dst, "orders")
	require.NoError(t, err)
	assert.True(t, exists)

	columns, err := inferSchema(ctx, client.pools[dst.DSN], "lana_dw", "orders")
	require.NoError(t, err)
	require.Len(t, columns, 3)
	assert.Equal(t, "bigint", columns[0].DataType)
	assert.False(t, columns[0].Nullable)
	assert.Equal(t, "numeric", columns[1].DataType)
	assert.Equal(t, "ARRAY", columns[2].DataType)

	_, err = reconciler.Sync(ctx, src, dst, "orders")
	require.NoError(t, err)
}
