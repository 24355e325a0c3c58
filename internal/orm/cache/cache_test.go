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

type backendFactory func(t *testing.T, config Config) (Cache, *miniredis.Miniredis)

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T, config Config) (Cache, *miniredis.Miniredis) {
			c := NewMemory(config)
			t.Cleanup(func() { c.Close() })
			return c, nil
		},
		"redis": func(t *testing.T, config Config) (Cache, *miniredis.Miniredis) {
			mr := miniredis.RunT(t)
			c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), config)
			t.Cleanup(func() { c.Close() })
			return c, mr
		},
	}
}

func TestBackends_SetGetDelete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			c, _ := factory(t, DefaultConfig())
			ctx := context.Background()

			_, err := c.Get(ctx, "inventory:1")
			assert.True(t, IsCacheMiss(err))

			require.NoError(t, c.Set(ctx, "inventory:1", []byte(`{"id":1}`), time.Minute))

			got, err := c.Get(ctx, "inventory:1")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"id":1}`), got)

			require.NoError(t, c.Delete(ctx, "inventory:1"))
			_, err = c.Get(ctx, "inventory:1")
			assert.True(t, IsCacheMiss(err))
		})
	}
}

func TestBackends_Clear(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			c, _ := factory(t, DefaultConfig())
			ctx := context.Background()

			require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
			require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
			require.NoError(t, c.Clear(ctx))

			_, err := c.Get(ctx, "a")
			assert.True(t, IsCacheMiss(err))
			_, err = c.Get(ctx, "b")
			assert.True(t, IsCacheMiss(err))
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemory_ClearKeepsOtherPrefixes(t *testing.T) {
	c := NewMemory(Config{Prefix: "a:"})
	defer c.Close()
	ctx := context.Background()

	c.data.Store("b:k", cacheItem{value: []byte("v")})
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Clear(ctx))

	_, ok := c.data.Load("b:k")
	assert.True(t, ok)
}

func TestMemory_CancelledContext(t *testing.T) {
	c := NewMemory(DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{
		DefaultTTL: time.Hour,
		Prefix:     "test:",
	})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "default", []byte("v"), 0))
	assert.Equal(t, time.Hour, mr.TTL("test:default"))

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
	mr.FastForward(100 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "forever", []byte("v"), -1))
	assert.Equal(t, time.Duration(0), mr.TTL("test:forever"))
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	addr := mr.Addr()
	c, err := NewRedis(RedisConfig{Addr: addr, Cache: DefaultConfig()})
	require.NoError(t, err)
	assert.NoError(t, c.Close())

	mr.Close()
	_, err = NewRedis(RedisConfig{Addr: addr, Cache: DefaultConfig()})
	assert.Error(t, err)
}
