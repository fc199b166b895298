package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedisStore exercises the Redis store against a real server.
func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewRedisStore(ctx, &RedisConfig{Addr: endpoint, TTL: "1m", Prefix: "test:"}, nil)
	require.NoError(t, err)
	defer store.Close()

	store.Set(ctx, "taxonomy_ci:a", []byte("one"))
	store.Set(ctx, "taxonomy_ci:b", []byte("two"))
	store.Set(ctx, "genomes:a", []byte("three"))

	v, ok := store.Get(ctx, "taxonomy_ci:a")
	require.True(t, ok)
	assert.Equal(t, "one", string(v))

	_, ok = store.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, store.InvalidatePrefix(ctx, "taxonomy_ci:"))
	_, ok = store.Get(ctx, "taxonomy_ci:b")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "genomes:a")
	assert.True(t, ok)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	defer rdb.Close()
	ttl, err := rdb.TTL(ctx, "test:genomes:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
}
