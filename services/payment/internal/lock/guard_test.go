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

func setupGuard(t *testing.T, ttl time.Duration) (*Guard, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewGuard(rdb, ttl), mr
}

func TestGuard_AcquireRelease(t *testing.T) {
	g, mr := setupGuard(t, time.Minute)
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("payment:processing:payment-1"))

	_, ok2, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	assert.False(t, ok2, "второй запрос не должен получить блокировку")

	release()
	assert.False(t, mr.Exists("payment:processing:payment-1"))

	release2, ok3, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	assert.True(t, ok3)
	release2()
}

func TestGuard_DifferentPaymentsIndependent(t *testing.T) {
	g, _ := setupGuard(t, time.Minute)
	ctx := context.Background()

	r1, ok1, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	r2, ok2, err := g.Acquire(ctx, "payment-2")
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2)
	r1()
	r2()
}

func TestGuard_TTLExpires(t *testing.T) {
	g, mr := setupGuard(t, 30*time.Second)
	ctx := context.Background()

	_, ok, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok, err = g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuard_ReleaseDoesNotDropForeignLock(t *testing.T) {
	g, mr := setupGuard(t, 30*time.Second)
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Ключ истёк и занят другим владельцем
	mr.FastForward(31 * time.Second)
	_, ok, err = g.Acquire(ctx, "payment-1")
	require.NoError(t, err)
	require.True(t, ok)

	release()

	assert.True(t, mr.Exists("payment:processing:payment-1"))
}

func TestGuard_RedisUnavailable(t *testing.T) {
	g, mr := setupGuard(t, time.Minute)
	mr.Close()

	release, ok, err := g.Acquire(context.Background(), "payment-1")

	assert.Error(t, err)
	assert.False(t, ok)
	assert.NotPanics(t, release)
}
