package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_ExclusiveUntilReleased(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := RoutingLockKey("t1", "sess1")

	l1, ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, l1)

	_, ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock already held by another owner")

	require.NoError(t, s.Release(ctx, l1))

	l2, ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, l2)
}

func TestRelease_OnlySucceedsForCurrentOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := RoutingLockKey("t1", "sess2")

	l1, ok, err := s.AcquireLock(ctx, key, time.Millisecond*10)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond) // let l1 expire

	l2, ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Stale l1.Release must not evict l2's lock (owner mismatch).
	require.NoError(t, s.Release(ctx, l1))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists, "l2's lock must survive a stale release from l1")

	require.NoError(t, s.Release(ctx, l2))
	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
