package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

// TokenCodec builds signed tokens and verifies them with a SigningKeyProvider.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	provider SigningKeyProvider
	audience string
	now      func() time.Time
	newID    func() string
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now. Tests use it to pin iat/exp.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator replaces the jti generator.
func WithIDGenerator(newID func() string) CodecOption {
	return func(c *TokenCodec) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewTokenCodec creates a codec signing with provider. audience is the
// default "aud" claim.
func NewTokenCodec(provider SigningKeyProvider, audience string, opts ...CodecOption) *TokenCodec {
	if audience == "" {
		audience = constants.DefaultAudience
	}
	c := &TokenCodec{
		provider: provider,
		audience: audience,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the codec's current time.
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// Provider returns the key provider behind the codec.
func (c *TokenCodec) Provider() SigningKeyProvider {
	return c.provider
}

// Encode signs a token for subject. See EncodeToken.
func (c *TokenCodec) Encode(subject, issuer string, ttl time.Duration, claims models.Claims) (string, error) {
	tok, err := c.EncodeToken(subject, issuer, ttl, claims)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// EncodeToken merges claims with the defaults (aud, jti, rol), stamps
// sub/iss/iat/exp and signs the result. A zero ttl produces a token that is
// already expired; a negative ttl is rejected. The caller's map is not modified.
func (c *TokenCodec) EncodeToken(subject, issuer string, ttl time.Duration, claims models.Claims) (*models.IssuedToken, error) {
	if ttl < 0 {
		return nil, errors.NewInvalidArgumentError("token ttl must not be negative, got %s", ttl)
	}

	mc := claims.Clone()
	if mc.String(constants.ClaimAudience) == "" {
		mc[constants.ClaimAudience] = c.audience
	}
	if mc.String(constants.ClaimTokenID) == "" {
		mc[constants.ClaimTokenID] = c.newID()
	}
	if mc.String(constants.ClaimRole) == "" {
		mc[constants.ClaimRole] = string(constants.RoleUser)
	}

	// NumericDate has second precision, so work in whole seconds throughout.
	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)

	mc[constants.ClaimSubject] = subject
	mc[constants.ClaimIssuer] = issuer
	mc[constants.ClaimIssuedAt] = jwt.NewNumericDate(issuedAt)
	mc[constants.ClaimExpiresAt] = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(c.provider.Algorithm(), mc.Map())
	token.Header["kid"] = c.provider.KeyID()

	signed, err := token.SignedString(c.provider.SigningKey())
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to sign token")
	}

	return &models.IssuedToken{
		Value:     signed,
		Type:      mc.Type(),
		JTI:       mc.ID(),
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// DecodeOption customizes a single Decode call.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	checkExpiry bool
}

// WithExpiryCheck makes Decode reject tokens whose exp is missing or not
// after the codec's current time.
func WithExpiryCheck() DecodeOption {
	return func(o *decodeOptions) { o.checkExpiry = true }
}

// Decode verifies token and returns its claims. The signature is checked
// first, with the provider's algorithm only, so no claim is read from an
// unverified token. The issuer must equal expectedIssuer.
func (c *TokenCodec) Decode(token, expectedIssuer string, opts ...DecodeOption) (models.Claims, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.NewMalformedTokenError(fmt.Errorf("token has %d segments, want 3", len(parts)))
	}

	alg := c.provider.Algorithm()
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, errors.NewSignatureInvalidError(err)
	}
	if err := alg.Verify(parts[0]+"."+parts[1], sig, c.provider.VerificationKey()); err != nil {
		return nil, errors.NewSignatureInvalidError(err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	mc := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(token, mc, func(*jwt.Token) (interface{}, error) {
		return c.provider.VerificationKey(), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, errors.NewSignatureInvalidError(err)
		default:
			return nil, errors.NewMalformedTokenError(err)
		}
	}

	claims := models.Claims(mc)
	if iss := claims.Issuer(); iss != expectedIssuer {
		return nil, errors.NewIssuerMismatchError(expectedIssuer, iss)
	}

	if o.checkExpiry {
		if !claims.Has(constants.ClaimExpiresAt) {
			return nil, errors.NewExpiredTokenError(errors.New("token has no exp claim"))
		}
		if exp := claims.ExpiresAt(); !c.now().Before(exp) {
			return nil, errors.NewExpiredTokenError(fmt.Errorf("token expired at %s", exp.UTC().Format(time.RFC3339)))
		}
	}

	return claims, nil
}
