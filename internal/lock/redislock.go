// Package lock implements a Redis-backed mutual exclusion used to keep
// administrative batch runs from interleaving.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-b2b/internal/resilience"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

const (
	defaultTTL       = 30 * time.Second
	defaultRetry     = 50 * time.Millisecond
	maxRetryInterval = 2 * time.Second
	keyPrefix        = "lock:"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker acquires keys with SET NX and a per-holder token.
type Locker struct {
	Client       redis.UniversalClient
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. Acquisition retries with exponential
// backoff until ctx is done; the lock is released when fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	base := l.RetryBackoff
	if base <= 0 {
		base = defaultRetry
	}
	key = keyPrefix + key
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		wait := resilience.Backoff(base, attempt, 0.2)
		if wait > maxRetryInterval {
			wait = maxRetryInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Held reports whether key is currently locked by anyone.
func (l Locker) Held(ctx context.Context, key string) (bool, error) {
	if l.Client == nil {
		return false, ErrNotConfigured
	}
	n, err := l.Client.Exists(ctx, keyPrefix+key).Result()
	return n > 0, err
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.Client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.Client.Del(ctx, key).Err()
		}
	}
}
