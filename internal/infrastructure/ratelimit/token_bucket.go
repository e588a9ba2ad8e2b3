package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// TokenBucket implements the token bucket algorithm for rate limiting.
// It provides thread-safe rate limiting with automatic token refill.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64   // Maximum number of tokens
	tokens     float64   // Current number of tokens
	rate       float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were refilled
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, rate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity, // Start with full bucket
		rate:       rate,
		lastRefill: now,
	}
}

// Take attempts to consume one token at now.
func (tb *TokenBucket) Take(now time.Time) Result {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return Result{Allowed: true, Remaining: int64(math.Floor(tb.tokens))}
	}
	wait := (1 - tb.tokens) / tb.rate
	return Result{RetryAfter: time.Duration(wait * float64(time.Second))}
}

// refill adds tokens for the time elapsed since the last refill.
// Must be called with lock held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = math.Min(tb.tokens+elapsed*tb.rate, tb.capacity)
	tb.lastRefill = now
}

// MemoryLimiter keeps one bucket per key in process memory. Buckets idle
// long enough to have refilled completely are evicted.
type MemoryLimiter struct {
	buckets  *cache.Cache
	capacity float64
	rate     float64
	now      func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter.
func NewMemoryLimiter(capacity, rate float64) *MemoryLimiter {
	idle := time.Duration(capacity/rate*float64(time.Second)) + time.Minute
	return &MemoryLimiter{
		buckets:  cache.New(idle, idle),
		capacity: capacity,
		rate:     rate,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()
	bucket := l.bucket(key, now)
	res := bucket.Take(now)
	// Touch to extend the idle window.
	l.buckets.SetDefault(key, bucket)
	return res, nil
}

func (l *MemoryLimiter) bucket(key string, now time.Time) *TokenBucket {
	if b, ok := l.buckets.Get(key); ok {
		return b.(*TokenBucket)
	}
	b := NewTokenBucket(l.capacity, l.rate, now)
	if err := l.buckets.Add(key, b, cache.DefaultExpiration); err != nil {
		// Lost the race to another request.
		if existing, ok := l.buckets.Get(key); ok {
			return existing.(*TokenBucket)
		}
	}
	return b
}
