package calls

import (
	"context"
	"time"

	"voiceagent-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps how many outbound calls run at once across the fleet.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NopLimiter admits every call. Used when no Redis is configured.
type NopLimiter struct{}

func (NopLimiter) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (NopLimiter) Release(ctx context.Context) error         { return nil }

const (
	// DefaultLimiterKey is the shared counter for active outbound calls.
	DefaultLimiterKey = "voiceagent:active_calls"

	// defaultSlotTTL bounds how long a crashed process can hold a slot.
	defaultSlotTTL = 15 * time.Minute
)

// RedisLimiter enforces the cap atomically across processes.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, key string, limit int, ttl time.Duration) *RedisLimiter {
	if key == "" {
		key = DefaultLimiterKey
	}
	if ttl <= 0 {
		ttl = defaultSlotTTL
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}
