package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the TTL only when the caller still owns the key.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Leaser hands out named, owner-tagged leases with a TTL. A lease that is not
// renewed expires on its own, so a crashed holder never blocks others for
// longer than the TTL.
type Leaser struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewLeaser creates a Leaser whose keys are namespaced under prefix.
func NewLeaser(client redis.Cmdable, prefix string, ttl time.Duration) *Leaser {
	return &Leaser{client: client, prefix: prefix, ttl: ttl}
}

func (l *Leaser) key(name string) string { return l.prefix + ":" + name }

// Acquire takes the lease for owner, or renews it when owner already holds
// it. Returns false when another owner holds the lease.
func (l *Leaser) Acquire(ctx context.Context, name, owner string) (bool, error) {
	key := l.key(name)
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease %s: setnx: %w", key, err)
	}
	if ok {
		return true, nil
	}

	result, err := renewScript.Run(ctx, l.client, []string{key}, owner, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("lease %s: renew: %w", key, err)
	}
	return result == 1, nil
}

// Release drops the lease if owner still holds it. Releasing a lease that
// expired or moved to another owner is a no-op.
func (l *Leaser) Release(ctx context.Context, name, owner string) error {
	key := l.key(name)
	if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease %s: release: %w", key, err)
	}
	return nil
}
