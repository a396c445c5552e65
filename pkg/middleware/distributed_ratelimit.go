package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
)

const rateWindow = time.Minute

// DistributedRateLimiter counts attempts per client in one-minute windows kept in Redis,
// so workstations sharing a session cache also share login limits. Each window has its
// own key, written with INCR and EXPIRE in one transaction.
type DistributedRateLimiter struct {
	client *redis.Client
	clock  clockwork.Clock
	prefix string
	max    int64
}

// NewDistributedRateLimiter allows RequestsPerMinute+BurstSize attempts per window
func NewDistributedRateLimiter(client *redis.Client, config RateLimitConfig, clock clockwork.Clock, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "cura:ratelimit"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DistributedRateLimiter{
		client: client,
		clock:  clock,
		prefix: prefix,
		max:    int64(config.RequestsPerMinute + config.BurstSize),
	}
}

func (rl *DistributedRateLimiter) windowKey(key string) string {
	window := rl.clock.Now().Unix() / int64(rateWindow/time.Second)
	return rl.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}

// Allow counts an attempt for key. A Redis failure allows the attempt and is returned so
// the caller can log it.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		k := rl.windowKey(key)
		count = pipe.Incr(ctx, k)
		// the key outlives its window so a slow clock on another workstation still sees it
		pipe.Expire(ctx, k, 2*rateWindow)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit window: %w", err)
	}
	return count.Val() <= rl.max, nil
}

// Remaining returns how many attempts key has left in the current window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	used, err := rl.client.Get(ctx, rl.windowKey(key)).Int64()
	if err == redis.Nil {
		return int(rl.max), nil
	}
	if err != nil {
		return 0, err
	}
	return int(max(rl.max-used, 0)), nil
}
