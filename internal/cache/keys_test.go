package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "pubmed:v1:abstract:123", AbstractKey("123"))
	assert.Equal(t, SummariesKey([]string{"1", "2"}), SummariesKey([]string{"1", "2"}))
	assert.NotEqual(t, SummariesKey([]string{"1", "2"}), SummariesKey([]string{"2", "1"}))
	assert.NotEqual(t, SummariesKey([]string{"1"}), ArticlesKey([]string{"1"}))
	assert.Equal(t, "ratelimit:ip:10.0.0.1:42", RateLimitKey("10.0.0.1", 42))
	assert.Equal(t, "lock:pubmed:v1:abstract:1", LockKey(AbstractKey("1")))
}

// TestRedisCache runs against a live server when TEST_REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(addr, "", 0)
	require.NoError(t, err)
	defer c.Close()

	key := AbstractKey("test-" + time.Now().Format("150405.000000"))
	defer c.Del(ctx, key)

	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	calls := 0
	fill := func() (interface{}, error) {
		calls++
		return map[string]string{"abstract": "text"}, nil
	}
	first, err := c.GetOrSet(ctx, key, time.Minute, fill)
	require.NoError(t, err)
	second, err := c.GetOrSet(ctx, key, time.Minute, fill)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 1, calls)

	counter := RateLimitKey("test", time.Now().UnixNano())
	defer c.Del(ctx, counter)
	n, err := c.Incr(ctx, counter, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Incr(ctx, counter, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
