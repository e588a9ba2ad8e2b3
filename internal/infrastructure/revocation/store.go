// Package revocation keeps a denylist of revoked token ids until the tokens
// would have expired anyway.
package revocation

import (
	"context"
	"time"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/infrastructure/persistence"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// Store records revoked jti values. It satisfies service.RevocationChecker.
type Store interface {
	// Revoke denies jti until expiresAt. Entries for tokens that have already
	// expired are not stored.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Claim revokes jti only if it is not revoked yet, in one atomic step.
	// It reports whether this call made the revocation.
	Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// New builds the store selected by security.revocation. It returns a nil
// Store for "none".
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	switch cfg.Security.Revocation {
	case "memory", "":
		return NewMemoryStore(), nil
	case "redis":
		client, err := persistence.NewRedisClient(ctx, &cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "Using redis revocation store")
		return NewRedisStore(client), nil
	case "none":
		return nil, nil
	default:
		return nil, errors.NewInvalidArgumentError("unknown revocation backend %q", cfg.Security.Revocation)
	}
}

func validateJTI(jti string) error {
	if jti == "" {
		return errors.NewInvalidArgumentError("jti is required")
	}
	return nil
}
