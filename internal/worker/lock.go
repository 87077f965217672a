package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants a named lease to a single replica.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker leases keys with SET NX.
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
}

// NewRedisLocker builds a locker whose leases carry owner as value.
func NewRedisLocker(client redis.UniversalClient, owner string) *RedisLocker {
	return &RedisLocker{client: client, owner: owner}
}

// Acquire reports whether this replica now holds key.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.owner, ttl).Result()
}

// LocalLocker always grants the lease. Used when only one replica runs.
type LocalLocker struct{}

// Acquire implements Locker.
func (LocalLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
