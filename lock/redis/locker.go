// Package redislock is a Redis-backed Locker for multi-node deployments:
// SET NX with a TTL as the lease, a token-checked script for release. The
// TTL bounds how long a crashed holder can block other nodes.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	// KeyPrefix namespaces lease keys. Default "netpass:lock:".
	KeyPrefix string
	// TTL is the lease lifetime. Default 10s.
	TTL time.Duration
	// RetryInterval between acquisition attempts. Default 50ms.
	RetryInterval time.Duration
}

func (c Config) defaulted() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "netpass:lock:"
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	return c
}

type Locker struct {
	rdb *redis.Client
	cfg Config
}

func New(rdb *redis.Client, cfg Config) *Locker {
	return &Locker{rdb: rdb, cfg: cfg.defaulted()}
}

// releaseScript deletes the lease only if this holder still owns it, so a
// lease that expired and was re-acquired elsewhere is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.cfg.KeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			release := func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.rdb, []string{full}, token).Err()
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}
