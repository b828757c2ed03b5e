package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) *Redis {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, "test", time.Minute)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	c := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "q1", []string{"doc-a", "doc-b"}, 0))

	var out []string
	ok, err := c.Get(ctx, "q1", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"doc-a", "doc-b"}, out)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := setupMiniRedis(t)
	var out string
	ok, err := c.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}
