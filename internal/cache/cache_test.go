package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSet(t *testing.T) {
	c := New(10, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", "v")
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(10, time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	c.Set(ctx, "c", 3) // evicts "a"

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	args1 := map[string]interface{}{"a": 1, "b": "x"}
	args2 := map[string]interface{}{"b": "x", "a": 1}
	assert.Equal(t, Fingerprint("mcp1", "get_thing", args1), Fingerprint("mcp1", "get_thing", args2))
}

func TestBypassNonIdempotent(t *testing.T) {
	assert.True(t, Bypass("create_widget", false))
	assert.True(t, Bypass("get_widget", true))
	assert.False(t, Bypass("get_widget", false))
	assert.False(t, Bypass("list_widgets", false))
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(10, 0)
	ctx := context.Background()
	c.Set(ctx, "k", 1)
	c.Delete(ctx, "k")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k1", 1)
	c.Set(ctx, "k2", 2)
	c.Clear(ctx)
	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
}
