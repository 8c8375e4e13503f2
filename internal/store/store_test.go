package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, time.Second)
}

func TestStore_SetNX(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k1", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k1", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must not overwrite")

	v, found, err := s.GetString(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", v)
}

func TestStore_GetString_Miss(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.GetString(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Incr_IsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		n, err := s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Greater(t, n, last)
		last = n
	}
	assert.Equal(t, int64(5), last)
}

func TestStore_ZAddAndZCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "zset"

	require.NoError(t, s.ZAdd(ctx, key, 10, "a"))
	require.NoError(t, s.ZAdd(ctx, key, 20, "b"))
	require.NoError(t, s.ZAdd(ctx, key, 30, "c"))

	count, err := s.ZCount(ctx, key, 0, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.ZRemRangeByScore(ctx, key, 0, 15))

	count, err = s.ZCount(ctx, key, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStore_ExpireAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetString(ctx, "k", "v", 0))
	require.NoError(t, s.Expire(ctx, "k", time.Minute))

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "k"))

	exists, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_PublishDoesNotError(t *testing.T) {
	s := newTestStore(t)
	err := s.Publish(context.Background(), "tenant.t1.calls", `{"type":"call.created"}`)
	assert.NoError(t, err)
}
