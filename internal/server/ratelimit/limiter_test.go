package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "alice@example.com"), "attempt %d", i+1)
	}

	assert.ErrorIs(t, l.Acquire(ctx, "alice@example.com"), common.ErrTooManyAttempts)
	// other identities are unaffected
	assert.NoError(t, l.Acquire(ctx, "bob@example.com"))

	n, err := l.Attempts(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	const limit, callers = 5, 40
	l := New(rdb, Config{MaxLoginAttempts: limit, LoginCooldownDuration: time.Minute})

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
		blocked atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := l.Acquire(ctx, "alice@example.com"); {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, common.ErrTooManyAttempts):
				blocked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, allowed.Load())
	assert.EqualValues(t, callers-limit, blocked.Load())
	assert.Equal(t, time.Minute, mr.TTL(loginKey("alice@example.com")))
}

func TestLimiter_WindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})

	require.NoError(t, l.Acquire(ctx, "alice@example.com"))
	assert.Equal(t, time.Minute, mr.TTL(loginKey("alice@example.com")))

	// a blocked attempt keeps the original window
	mr.FastForward(30 * time.Second)
	assert.ErrorIs(t, l.Acquire(ctx, "alice@example.com"), common.ErrTooManyAttempts)
	assert.Equal(t, 30*time.Second, mr.TTL(loginKey("alice@example.com")))

	mr.FastForward(31 * time.Second)
	assert.NoError(t, l.Acquire(ctx, "alice@example.com"))
}

func TestLimiter_KeyWithoutTTLGetsWindow(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxLoginAttempts: 5, LoginCooldownDuration: time.Minute})

	require.NoError(t, mr.Set(loginKey("alice@example.com"), "2"))
	require.NoError(t, l.Acquire(ctx, "alice@example.com"))

	assert.Equal(t, time.Minute, mr.TTL(loginKey("alice@example.com")))
	n, err := l.Attempts(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})

	require.NoError(t, l.Acquire(ctx, "alice@example.com"))
	require.NoError(t, l.Reset(ctx, "alice@example.com"))
	assert.NoError(t, l.Acquire(ctx, "alice@example.com"))

	n, err := l.Attempts(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLimiter_RedisDown(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l := New(rdb, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	mr.Close()

	assert.ErrorIs(t, l.Acquire(ctx, "a"), ErrRedisUnavailable)
	assert.ErrorIs(t, l.Reset(ctx, "a"), ErrRedisUnavailable)
	_, err = l.Attempts(ctx, "a")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
