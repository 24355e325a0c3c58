package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
)

// countingService counts FindUnique calls reaching the backing service
type countingService struct {
	*crud.Memory
	finds int
}

func (c *countingService) FindUnique(ctx context.Context, id interface{}) (crud.Row, error) {
	c.finds++
	return c.Memory.FindUnique(ctx, id)
}

// brokenCache fails every operation
type brokenCache struct{}

var errBroken = errors.New("backend down")

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenCache) Delete(context.Context, string) error { return errBroken }
func (brokenCache) Clear(context.Context) error          { return errBroken }
func (brokenCache) Close() error                         { return nil }

func TestService_ReadThrough(t *testing.T) {
	inner := &countingService{Memory: crud.NewMemory()}
	backend := NewMemory(DefaultConfig())
	defer backend.Close()
	svc := Wrap(inner, backend, "inventory")
	ctx := context.Background()

	created, err := inner.Memory.Create(ctx, crud.Row{"origin": "A", "costPrice": 12.5})
	require.NoError(t, err)

	first, err := svc.FindUnique(ctx, created["id"])
	require.NoError(t, err)
	second, err := svc.FindUnique(ctx, created["id"])
	require.NoError(t, err)

	assert.Equal(t, 1, inner.finds)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), second["id"])
	assert.Equal(t, 12.5, second["costPrice"])
}

func TestService_WritesRefreshAndInvalidate(t *testing.T) {
	inner := &countingService{Memory: crud.NewMemory()}
	mr := miniredis.RunT(t)
	backend := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), DefaultConfig())
	defer backend.Close()
	svc := Wrap(inner, backend, "inventory")
	ctx := context.Background()

	created, err := svc.Create(ctx, crud.Row{"origin": "A"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("rowmodel:inventory:1"))

	_, err = svc.Update(ctx, created["id"], crud.Row{"origin": "B"})
	require.NoError(t, err)

	got, err := svc.FindUnique(ctx, created["id"])
	require.NoError(t, err)
	assert.Equal(t, "B", got["origin"])
	assert.Equal(t, 0, inner.finds, "served from the refreshed cache entry")

	_, err = svc.Delete(ctx, created["id"])
	require.NoError(t, err)
	assert.False(t, mr.Exists("rowmodel:inventory:1"))

	_, err = svc.FindUnique(ctx, created["id"])
	assert.True(t, crud.IsNotFound(err))
}

func TestService_CacheFailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inner := crud.NewMemory()
	svc := Wrap(inner, brokenCache{}, "inventory", WithLogger(zap.New(core)))
	ctx := context.Background()

	created, err := svc.Create(ctx, crud.Row{"origin": "A"})
	require.NoError(t, err)

	got, err := svc.FindUnique(ctx, created["id"])
	require.NoError(t, err)
	assert.Equal(t, "A", got["origin"])

	assert.Equal(t, 1, logs.FilterMessage("cache read failed").Len())
	assert.Equal(t, 2, logs.FilterMessage("cache write failed").Len())
}

func TestService_KeepsTransactionalCapability(t *testing.T) {
	backend := NewMemory(DefaultConfig())
	defer backend.Close()

	svc := Wrap(crud.NewMemory(), backend, "inventory")
	_, ok := svc.(crud.Transactional)
	assert.True(t, ok)

	type plain struct{ crud.Service }
	svc = Wrap(plain{crud.NewMemory()}, backend, "inventory")
	_, ok = svc.(crud.Transactional)
	assert.False(t, ok)
}

func TestService_TransactionBypassesCache(t *testing.T) {
	inner := crud.NewMemory()
	backend := NewMemory(DefaultConfig())
	defer backend.Close()
	svc := Wrap(inner, backend, "inventory")
	ctx := context.Background()

	created, err := svc.Create(ctx, crud.Row{"origin": "A"})
	require.NoError(t, err)

	tx := svc.(crud.Transactional)
	err = tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := svc.Update(ctx, created["id"], crud.Row{"origin": "B"}); err != nil {
			return err
		}
		row, err := svc.FindUnique(ctx, created["id"])
		require.NoError(t, err)
		assert.Equal(t, "B", row["origin"])
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = backend.Get(ctx, "inventory:1")
	assert.True(t, IsCacheMiss(err))

	got, err := svc.FindUnique(ctx, created["id"])
	require.NoError(t, err)
	assert.Equal(t, "A", got["origin"])
}

func TestDecodeRow(t *testing.T) {
	row, err := decodeRow([]byte(`{"id":7,"price":9.5,"tags":[1,"x"],"meta":{"n":2}}`))
	require.NoError(t, err)

	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, 9.5, row["price"])
	assert.Equal(t, []interface{}{int64(1), "x"}, row["tags"])
	assert.Equal(t, map[string]interface{}{"n": int64(2)}, row["meta"])

	_, err = decodeRow([]byte(`not json`))
	assert.Error(t, err)
}
