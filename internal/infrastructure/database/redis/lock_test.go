package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

func newMiniClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewClientWithRDB(rdb, logging.NewNopLogger())
}

func TestMutex_LockUnlock(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()
	lock := NewMutex(client, "NO_2020_2021", logging.NewNopLogger(), WithLockTTL(time.Second))

	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("lock:NO_2020_2021"))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("lock:NO_2020_2021"))
}

func TestMutex_Contention(t *testing.T) {
	_, client := newMiniClient(t)
	ctx := context.Background()
	log := logging.NewNopLogger()
	first := NewMutex(client, "k", log)
	second := NewMutex(client, "k", log, WithRetry(2, 5*time.Millisecond))

	require.NoError(t, first.Lock(ctx))
	err := second.Lock(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRunInProgress))

	// only the owner may release
	err = second.Unlock(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))

	require.NoError(t, first.Unlock(ctx))
	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_ExpiresAfterTTL(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()
	log := logging.NewNopLogger()
	first := NewMutex(client, "k", log, WithLockTTL(time.Second))
	require.NoError(t, first.Lock(ctx))

	mr.FastForward(2 * time.Second)

	ok, err := NewMutex(client, "k", log).TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_ExtendAndTTL(t *testing.T) {
	_, client := newMiniClient(t)
	ctx := context.Background()
	lock := NewMutex(client, "k", logging.NewNopLogger(), WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, 5*time.Second)
}

func TestRunGuard_RejectsConcurrentRun(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()
	guard := NewRunGuard(client, time.Minute, logging.NewNopLogger())

	release, err := guard.Acquire(ctx, "NO_2020_2021")
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, "NO_2020_2021")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRunInProgress))

	// other queries are independent
	releaseOther, err := guard.Acquire(ctx, "SE_2020_2021")
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, mr.Exists("lock:run:NO_2020_2021"))

	release2, err := guard.Acquire(ctx, "NO_2020_2021")
	require.NoError(t, err)
	release2()
}
