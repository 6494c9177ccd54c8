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
)

func TestMemoryStore_UnknownAssetNeverMaterialized(t *testing.T) {
	store := NewMemoryStore()

	state, err := store.RunState(context.Background(), models.NewAssetKey("lana", "orders"))
	require.NoError(t, err)
	assert.False(t, state.HasMaterialized)
	assert.True(t, state.LastMaterializedAt.IsZero())
	assert.Equal(t, "lana/orders", state.AssetKey.String())
}

func TestMemoryStore_RecordKeepsLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := models.NewAssetKey("lana", "orders")
	at := time.Date(2025, 3, 1, 0, 0, 5, 0, time.UTC)

	require.NoError(t, store.RecordMaterialization(ctx, key, "run-2", at))
	require.NoError(t, store.RecordMaterialization(ctx, key, "run-1", at.Add(-time.Hour)))

	state, err := store.RunState(ctx, key)
	require.NoError(t, err)
	assert.True(t, state.HasMaterialized)
	assert.Equal(t, "run-2", state.LastRunID)
	assert.Equal(t, at, state.LastMaterializedAt)
}

func TestNewStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := NewStore(context.Background(), logger, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(context.Background(), logger, "mysql://localhost")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}
