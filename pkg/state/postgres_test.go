//go:build integration
// +build integration

package state

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/assetflow/pkg/models"
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

func setupTestDB(t *testing.T) (*PostgresStore, context.Context) {
	ctx := context.Background()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error
		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("assetflow_state_test"),
			postgres.WithUsername("assetflow"),
			postgres.WithPassword("assetflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewPostgresStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "TRUNCATE TABLE asset_materializations")
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store, ctx := setupTestDB(t)
	key := models.NewAssetKey("lana", "orders")

	state, err := store.RunState(ctx, key)
	require.NoError(t, err)
	assert.False(t, state.HasMaterialized)

	at := time.Date(2025, 3, 1, 0, 0, 5, 0, time.UTC)
	require.NoError(t, store.RecordMaterialization(ctx, key, "run-2", at))
	require.NoError(t, store.RecordMaterialization(ctx, key, "run-1", at.Add(-time.Hour)))

	state, err = store.RunState(ctx, key)
	require.NoError(t, err)
	assert.True(t, state.HasMaterialized)
	assert.Equal(t, "run-2", state.LastRunID)
	assert.True(t, at.Equal(state.LastMaterializedAt))
}

func TestPostgresStore_MigrationsAreIdempotent(t *testing.T) {
	_, ctx := setupTestDB(t)

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	again, err := NewPostgresStore(ctx, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})), databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
