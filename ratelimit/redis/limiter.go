// Package redislimiter is the Redis-backed sliding-window limiter, shared
// across all portal nodes fronting the same hotspot.
package redislimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/netpass/ratelimit"
)

// Limiter uses a ZSET per (key, bucket) with request timestamps as scores.
type Limiter struct {
	rdb    *redis.Client
	keyNS  string
	limits map[string]ratelimit.Limit
}

// New constructs a limiter; nil limits means ratelimit.DefaultLimits.
func New(rdb *redis.Client, limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = ratelimit.DefaultLimits()
	}
	return &Limiter{rdb: rdb, keyNS: "netpass:rl:", limits: limits}
}

func (l *Limiter) get(bucket string) ratelimit.Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits[ratelimit.BucketDefault]; ok {
		return v
	}
	return ratelimit.Limit{Limit: 100, Window: time.Minute}
}

// AllowNamed implements ratelimit.Limiter.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lim := l.get(bucket)
	now := time.Now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	limitKey := l.keyNS + key + ":" + bucket

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, limitKey, redis.Z{Score: float64(now), Member: now})
	pipe.ZRemRangeByScore(ctx, limitKey, "0", fmt.Sprintf("%d", start))
	countCmd := pipe.ZCard(ctx, limitKey)
	pipe.Expire(ctx, limitKey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Limit) {
		// Over the limit: take this attempt back out so denied requests
		// don't extend the lockout.
		l.rdb.ZRem(ctx, limitKey, now)
		return false, nil
	}
	return true, nil
}
