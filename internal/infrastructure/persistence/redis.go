package persistence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// NewRedisClient connects to the configured Redis and checks it answers.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to connect to redis")
	}
	log.Info(ctx, "Redis connection established", logger.String("address", cfg.Address), logger.Int("db", cfg.DB))
	return client, nil
}
