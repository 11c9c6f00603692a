package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the key stays locked for the whole wait window.
var ErrLockHeld = errors.New("lock is held by another worker")

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort advisory lock shared by all instances.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	// Wait is the total time Acquire keeps retrying; Retry the pause between tries.
	Wait  time.Duration
	Retry time.Duration
}

func (l *RedisLocker) ttl() time.Duration {
	if l.TTL > 0 {
		return l.TTL
	}
	return 30 * time.Second
}

func (l *RedisLocker) retry() time.Duration {
	if l.Retry > 0 {
		return l.Retry
	}
	return 50 * time.Millisecond
}

// Acquire takes the lock for key, retrying until Wait elapses or ctx is done.
// The returned release func is safe to call once the work is finished.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.New().String()
	full := l.Prefix + key
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.Client.SetNX(ctx, full, owner, l.ttl()).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// background ctx: release must run even if the request ctx is gone
				_ = releaseScript.Run(context.Background(), l.Client, []string{full}, owner).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry()):
		}
	}
}
