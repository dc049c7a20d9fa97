// Package lock provides a best-effort distributed lock on Redis used to
// keep several server instances from sweeping at the same time.
package lock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLock is a SET NX PX lock on a single key.  The value records which
// instance holds it.  Locks are not released; they lapse after their ttl.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	owner string
}

func NewRedisLock(rdb *redis.Client, key string) *RedisLock {
	host, _ := os.Hostname()
	return &RedisLock{rdb: rdb, key: key, owner: host + "/" + uuid.NewString()}
}

// TryLock takes the lock for ttl if nobody holds it.
func (l *RedisLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lock %s: ttl must be positive", l.key)
	}
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Holder returns the owner recorded in the lock, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	v, err := l.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}
