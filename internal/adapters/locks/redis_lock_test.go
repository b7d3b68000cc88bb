package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLock(client, 5*time.Second), mr
}

func TestRedisLock_ExclusiveUntilUnlock(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisLock(t)
	b := NewRedisLock(a.Client, 5*time.Second)

	ok, err := a.TryLock(ctx, "A|B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(redisKeyPrefix+"A|B"))

	ok, err = b.TryLock(ctx, "A|B")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	ok, err = b.TryLock(ctx, "B|A")
	require.NoError(t, err)
	assert.True(t, ok, "reverse direction is a different key")

	require.NoError(t, a.Unlock(ctx, "A|B"))
	assert.False(t, mr.Exists(redisKeyPrefix+"A|B"))

	ok, err = b.TryLock(ctx, "A|B")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiredLockIsNotDeletedByOldHolder(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisLock(t)
	b := NewRedisLock(a.Client, 5*time.Second)

	ok, err := a.TryLock(ctx, "A|B")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = b.TryLock(ctx, "A|B")
	require.NoError(t, err)
	require.True(t, ok)

	err = a.Unlock(ctx, "A|B")
	assert.Error(t, err)
	assert.True(t, mr.Exists(redisKeyPrefix+"A|B"), "new holder keeps the lock")
}

func TestRedisLock_UnlockUnknownKeyIsNoop(t *testing.T) {
	a, _ := newTestRedisLock(t)
	assert.NoError(t, a.Unlock(context.Background(), "never|held"))
}

func TestRedisLock_ServerDownReturnsError(t *testing.T) {
	a, mr := newTestRedisLock(t)
	mr.Close()

	ok, err := a.TryLock(context.Background(), "A|B")
	assert.Error(t, err)
	assert.False(t, ok)
}
