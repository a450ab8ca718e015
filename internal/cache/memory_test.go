package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	n, err := c.Del(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("GUESTDESK_TEST_REDIS_URL")
	if testing.Short() || url == "" {
		t.Skip("GUESTDESK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	key := "guestdesk:test:" + time.Now().Format(time.RFC3339Nano)
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, key, "value", time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	n, err := c.Del(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
