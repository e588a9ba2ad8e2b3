package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

const testIssuer = "txauth-test"

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable time source shared by codec and validator.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCodec(t *testing.T, clk *clock) *crypto.TokenCodec {
	t.Helper()
	p, err := crypto.NewSymmetricProvider("s3cr3t")
	require.NoError(t, err)
	return crypto.NewTokenCodec(p, "txauth-api", crypto.WithClock(clk.Now))
}

func newIssuer(codec *crypto.TokenCodec, authTTL, refreshTTL time.Duration) *service.TokenIssuer {
	return service.NewTokenIssuer(codec, &config.SecurityConfig{
		Issuer:     testIssuer,
		AuthTTL:    authTTL,
		RefreshTTL: refreshTTL,
	}, nil, nil, logger.NewNopLogger())
}

// signed encodes a token of tokenType with role for subject.
func signed(t *testing.T, codec *crypto.TokenCodec, subject string, tokenType constants.TokenType, role constants.Role, ttl time.Duration) string {
	t.Helper()
	claims := models.Claims{constants.ClaimType: string(tokenType)}
	if role != "" {
		claims[constants.ClaimRole] = string(role)
	}
	tok, err := codec.Encode(subject, testIssuer, ttl, claims)
	require.NoError(t, err)
	return tok
}

func bearer(tok string) string { return constants.BearerPrefix + tok }
