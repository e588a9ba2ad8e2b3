// Package ratelimit provides rate limiting implementations.
// Both backends run the same token bucket: capacity Burst, refilled at
// RequestsPerMinute/60 tokens per second.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Remaining int64
	// RetryAfter is how long until one token is available. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter checks and consumes one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// New builds the limiter selected by cfg.Backend. It returns nil when rate
// limiting is disabled. client is only used by the redis backend.
func New(cfg *config.RateLimitConfig, client redis.UniversalClient, log logger.Logger) (Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return nil, errors.NewInvalidArgumentError("rate_limit.requests_per_minute and rate_limit.burst must be positive")
	}
	capacity := float64(cfg.Burst)
	rate := float64(cfg.RequestsPerMinute) / 60.0

	switch cfg.Backend {
	case "memory", "":
		return NewMemoryLimiter(capacity, rate), nil
	case "redis":
		if client == nil {
			return nil, errors.NewInvalidArgumentError("redis rate limiter needs a redis client")
		}
		log.Info(context.Background(), "Using redis rate limiter",
			logger.Int("requests_per_minute", cfg.RequestsPerMinute), logger.Int("burst", cfg.Burst))
		return NewRedisLimiter(client, capacity, rate, log), nil
	default:
		return nil, errors.NewInvalidArgumentError("unknown rate_limit.backend %q", cfg.Backend)
	}
}
