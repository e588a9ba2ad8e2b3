package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

const keyPrefix = "txauth:revoked:"

// RedisStore shares the denylist between instances through Redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(jti string) string { return keyPrefix + jti }

func (s *RedisStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := validateJTI(jti); err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, key(jti), "1", ttl).Err(); err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to store revoked token")
	}
	return nil
}

// Claim revokes jti with SET NX so that exactly one caller wins.
func (s *RedisStore) Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	if err := validateJTI(jti); err != nil {
		return false, err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return true, nil
	}
	ok, err := s.rdb.SetNX(ctx, key(jti), "1", ttl).Result()
	if err != nil {
		return false, errors.WrapError(err, constants.ErrCodeInternal, "failed to claim token")
	}
	return ok, nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(jti)).Result()
	if err != nil {
		return false, errors.WrapError(err, constants.ErrCodeInternal, "failed to query revoked token")
	}
	return n == 1, nil
}
