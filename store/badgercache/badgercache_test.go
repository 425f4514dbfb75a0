package badgercache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugrade/audit-engine/store/badgercache"
)

func newTestCache(t *testing.T) *badgercache.Cache {
	t.Helper()
	cache, err := badgercache.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCache_SetGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "audit_hash:grade:G1", "abc123", time.Minute))

	value, found, err := cache.Get(ctx, "audit_hash:grade:G1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc123", value)
}

func TestCache_MissIsNotAnError(t *testing.T) {
	cache := newTestCache(t)

	_, found, err := cache.Get(context.Background(), "audit_hash:grade:NOPE")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_OverwriteKeepsLatest(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "old", time.Minute))
	require.NoError(t, cache.Set(ctx, "k", "new", time.Minute))

	value, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", value)
}

func TestCache_EntriesExpire(t *testing.T) {
	// Badger TTLs have one-second granularity, hence the real sleep.
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Second))
	time.Sleep(1200 * time.Millisecond)

	_, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired entry must read as a miss")
}
