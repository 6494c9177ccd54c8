package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: server.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	return store, server
}

func TestMemoryStore_ClaimWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	ok, err := store.Claim(ctx, "notify_failure_r42", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, "notify_failure_r42", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Hour)

	ok, err = store.Claim(ctx, "notify_failure_r42", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Release(t *testing.T) {
	store := NewMemoryStore(time.Now)
	ctx := context.Background()

	ok, _ := store.Claim(ctx, "k", time.Hour)
	require.True(t, ok)
	require.NoError(t, store.Release(ctx, "k"))

	ok, _ = store.Claim(ctx, "k", time.Hour)
	assert.True(t, ok)
}

func TestRedisStore_Claim(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "lana/orders_missing", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, server.Exists(keyPrefix+"lana/orders_missing"))

	ok, err = store.Claim(ctx, "lana/orders_missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	server.FastForward(2 * time.Minute)

	ok, err = store.Claim(ctx, "lana/orders_missing", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Release(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))
	assert.False(t, server.Exists(keyPrefix+"k"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, server := newRedisStore(t)
	server.Close()

	_, err := store.Claim(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestStores_ConcurrentClaimsCollapse(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	for name, store := range map[string]Store{
		"memory": NewMemoryStore(time.Now),
		"redis":  redisStore,
	} {
		t.Run(name, func(t *testing.T) {
			var winners atomic.Int32

			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					if ok, err := store.Claim(context.Background(), "same-key", time.Minute); err == nil && ok {
						winners.Add(1)
					}
				}()
			}

			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	server := miniredis.RunT(t)
	store, err = NewStore(ctx, "redis://"+server.Addr()+"/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(ctx, "etcd://localhost")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}
