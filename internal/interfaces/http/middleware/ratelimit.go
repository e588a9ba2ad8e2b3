package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/txauth/internal/infrastructure/ratelimit"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// RateLimit throttles requests per route and client IP. A nil limiter
// disables it. When the limiter backend fails the request is let through.
func RateLimit(limiter ratelimit.Limiter, log logger.Logger) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := limiter.Allow(ctx, c.FullPath()+"|"+c.ClientIP())
		if err != nil {
			log.Warn(ctx, "Rate limiter unavailable, allowing request", logger.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			rateErr := errors.NewRateLimitedError(res.RetryAfter)
			c.Header("Retry-After", strconv.FormatInt(rateErr.Metadata()["retry_after"].(int64), 10))
			AbortWithError(c, rateErr)
			return
		}
		c.Next()
	}
}
