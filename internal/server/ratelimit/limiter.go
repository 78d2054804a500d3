// Package ratelimit throttles logins per email with Redis fixed-window
// counters. Every attempt reserves a slot before the password is checked; the
// first slot in a window sets the key TTL and a verified password clears the
// counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any failure talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

const keyPrefix = "gophauth:login:"

// Config holds limiter tuning parameters.
type Config struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter counts login attempts that have not been followed by a success.
// Once an email has used MaxLoginAttempts slots in the current window,
// Acquire returns common.ErrTooManyAttempts until the window expires.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, config: cfg}
}

func loginKey(email string) string {
	return keyPrefix + email
}

// acquireScript increments the counter and starts the window in one step. A
// key left without a TTL gets one as well.
var acquireScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Acquire reserves one login attempt for email. Concurrent callers each get
// a distinct count, so at most MaxLoginAttempts of them pass per window.
func (l *Limiter) Acquire(ctx context.Context, email string) error {
	window := l.config.LoginCooldownDuration.Milliseconds()
	if window <= 0 {
		window = 1
	}
	count, err := acquireScript.Run(ctx, l.redis, []string{loginKey(email)}, window).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return common.ErrTooManyAttempts
	}
	return nil
}

// Reset clears the counter once a password has been verified.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the slots used in the current window, blocked attempts
// included.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) Close() error {
	return l.redis.Close()
}
