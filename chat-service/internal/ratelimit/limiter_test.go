package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, 5, time.Minute), mr
}

func TestRedisLimiter_SixthRejectedThenWindowResets(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.TryConsume(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "send %d", i+1)
	}

	ok, err := l.TryConsume(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Rejections do not extend the window.
	assert.Equal(t, "5", mustGet(t, mr, l.BuildKey("u1")))
	assert.Equal(t, time.Minute, mr.TTL(l.BuildKey("u1")))

	mr.FastForward(61 * time.Second)

	ok, err = l.TryConsume(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_PerSender(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.TryConsume(ctx, "u1")
	}
	ok, err := l.TryConsume(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_ConcurrentConsumersNeverExceedLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryConsume(ctx, "u1"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, allowed.Load())
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	ok, err := l.TryConsume(context.Background(), "u1")
	assert.True(t, ok)
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
