package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, append([]RedisOption{WithRetryInterval(time.Millisecond)}, opts...)...), mr
}

func TestRedisMutualExclusion(t *testing.T) {
	locker, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, locker)
}

func TestRedisLockSetsPrefixedKeyWithTTL(t *testing.T) {
	locker, mr := newRedisLocker(t, WithKeyPrefix("test:"), WithTTL(time.Minute))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:hash-1"))
	assert.Equal(t, time.Minute, mr.TTL("test:hash-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:hash-1"))
}

func TestRedisUnlockAfterExpiryReportsNotHeld(t *testing.T) {
	locker, mr := newRedisLocker(t, WithTTL(time.Second))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	assert.ErrorIs(t, unlock(ctx), ErrNotHeld)
	require.NoError(t, other(ctx))
}

func TestRedisLockHonoursContext(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()
	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	locker, err := DialRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, locker.Close())

	_, err = DialRedis(context.Background(), "")
	require.Error(t, err)
}
