package kernelcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-go/flint/pkg/config"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(&config.CacheConfig{Type: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheMissThenHit(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, Hash("kernel source a"))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.Put(ctx, "add_f64", "kernel source a", []byte{1, 2, 3})
	require.NoError(t, err)

	got, ok, err := c.Get(ctx, stored.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "add_f64", got.KernelSig)
	assert.Equal(t, []byte{1, 2, 3}, got.Binary)
}

func TestCacheInvalidateClearsEntries(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	stored, err := c.Put(ctx, "mul_f64", "kernel source b", nil)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx, stored.Hash)
	require.NoError(t, err)
	assert.False(t, ok)
}
