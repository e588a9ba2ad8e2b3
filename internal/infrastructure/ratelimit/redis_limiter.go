package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const keyPrefix = "txauth:ratelimit:"

// Lua script for atomic token bucket operations
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

-- rate is per second, elapsed in ms
local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', now)
redis.call('PEXPIRE', key, math.ceil((capacity - tokens) / rate * 1000) + 60000)

return {allowed, math.floor(tokens), retry_ms}
`)

// RedisLimiter shares buckets between instances through Redis.
type RedisLimiter struct {
	client   redis.UniversalClient
	capacity float64
	rate     float64
	now      func() time.Time
	logger   logger.Logger
}

func NewRedisLimiter(client redis.UniversalClient, capacity, rate float64, log logger.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		capacity: capacity,
		rate:     rate,
		now:      time.Now,
		logger:   log.WithComponent("RedisRateLimiter"),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := tokenBucketScript.Run(ctx, l.client, []string{keyPrefix + key},
		l.capacity, l.rate, l.now().UnixMilli()).Int64Slice()
	if err != nil {
		l.logger.Error(ctx, "rate limit script failed", err, logger.String("key", key))
		return Result{}, errors.WrapError(err, constants.ErrCodeInternal, "rate limiter unavailable")
	}
	return Result{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
