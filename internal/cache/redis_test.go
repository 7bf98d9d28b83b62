package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when REDIS_TEST_ADDR is set.
func testStore(t *testing.T) *StateStore {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	store, err := Connect(context.Background(), Options{Addr: addr, DB: 15, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStore_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	ns := uuid.New().String()
	t.Cleanup(func() { store.Clear(ctx, ns) })

	_, ok, err := store.Get(ctx, ns, "auth.token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, ns, "auth.token", "tok"))
	require.NoError(t, store.Set(ctx, ns, "auth.role", "admin"))

	v, ok, err := store.Get(ctx, ns, "auth.token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	ttl, err := store.client.TTL(ctx, keyPrefix+ns).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, ns, "auth.role"))
	_, ok, _ = store.Get(ctx, ns, "auth.role")
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx, ns))
	_, ok, _ = store.Get(ctx, ns, "auth.token")
	assert.False(t, ok)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
