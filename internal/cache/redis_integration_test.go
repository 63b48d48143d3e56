//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := DialRedis(ctx, RedisOptions{URL: url, PoolSize: 4, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))

	c := New(store, Options{})
	t.Cleanup(func() { _ = c.Close() })

	c.PutRecord(ctx, sampleRecord())
	e, ok := c.Get(ctx, "530196605")
	require.True(t, ok)
	assert.Equal(t, "530196605", e.Record.EIN)

	c.PutNotFound(ctx, "000000001")
	e, ok = c.Get(ctx, "000000001")
	require.True(t, ok)
	assert.False(t, e.Found)

	ttl, err := store.client.TTL(ctx, c.Key("000000001")).Result()
	require.NoError(t, err)
	assert.InDelta(t, (24 * time.Hour).Seconds(), ttl.Seconds(), 5)

	c.Invalidate(ctx, "530196605")
	_, ok = c.Get(ctx, "530196605")
	assert.False(t, ok)
}

func TestDialRedis_BadURL(t *testing.T) {
	_, err := DialRedis(context.Background(), RedisOptions{URL: "not-a-url"})
	assert.Error(t, err)
}
