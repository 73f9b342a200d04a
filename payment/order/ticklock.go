package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"go-cryptopay/payment/config"
)

// ErrLockLost is returned by Lease.Extend when the lock expired or was taken over.
var ErrLockLost = errors.New("tick lock lost")

// TickLock keeps verification from running in more than one process at once.
type TickLock interface {
	// Acquire returns ok=false when another holder owns the lock.
	Acquire(ctx context.Context) (lease Lease, ok bool, err error)
}

// Lease is a held TickLock. Extend must be called before the TTL runs out.
type Lease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type noopLock struct{}

func (noopLock) Acquire(context.Context) (Lease, bool, error) {
	return noopLease{}, true, nil
}

type noopLease struct{}

func (noopLease) Extend(context.Context) error  { return nil }
func (noopLease) Release(context.Context) error { return nil }

// LockTTL covers the worst case of a single order: two data source calls that
// both spend every try at the full call timeout and backoff, then the
// lastCheckedAt refresh. The scheduler extends the lease before each order.
func LockTTL(cfg *config.Config) time.Duration {
	perCall := time.Duration(cfg.RetryMaxTries) * (cfg.CallTimeout + cfg.RetryMaxInterval)
	return 2*perCall + touchTimeout + cfg.PollInterval
}

// both scripts act only if we still own the key
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock builds a lock that expires after ttl in case the holder dies mid-poll.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{lock: l, token: token}, true, nil
}

type redisLease struct {
	lock  *RedisLock
	token string
}

func (le *redisLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token, le.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend tick lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (le *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token).Err(); err != nil {
		return fmt.Errorf("release tick lock: %w", err)
	}
	return nil
}
