package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/txauth/pkg/constants"
)

// Claims is the claim set carried inside a signed token. It is a thin named
// type over jwt.MapClaims so it can be handed to the jwt library directly
// while offering typed accessors to callers.
// Claims 是签名令牌中携带的声明集。它是 jwt.MapClaims 的轻量命名类型，
// 可以直接交给 jwt 库使用，同时为调用方提供类型化访问器。
type Claims jwt.MapClaims

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	if c == nil {
		return ""
	}
	switch v := c[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Has reports whether the claim is present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c Claims) Subject() string           { return c.String(constants.ClaimSubject) }
func (c Claims) Issuer() string            { return c.String(constants.ClaimIssuer) }
func (c Claims) Audience() string          { return c.String(constants.ClaimAudience) }
func (c Claims) ID() string                { return c.String(constants.ClaimTokenID) }
func (c Claims) Role() constants.Role      { return constants.Role(c.String(constants.ClaimRole)) }
func (c Claims) Type() constants.TokenType { return constants.TokenType(c.String(constants.ClaimType)) }
func (c Claims) ServiceID() string         { return c.String(constants.ClaimServiceID) }
func (c Claims) ServiceName() string       { return c.String(constants.ClaimService) }
func (c Claims) Owner() string             { return c.String(constants.ClaimOwner) }

// IssuedAt returns the "iat" claim, or the zero time.
func (c Claims) IssuedAt() time.Time { return c.numericTime(constants.ClaimIssuedAt) }

// ExpiresAt returns the "exp" claim, or the zero time.
func (c Claims) ExpiresAt() time.Time { return c.numericTime(constants.ClaimExpiresAt) }

func (c Claims) numericTime(name string) time.Time {
	var secs float64
	switch v := c[name].(type) {
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}
		}
		secs = f
	case *jwt.NumericDate:
		if v == nil {
			return time.Time{}
		}
		return v.Time
	default:
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9))
}

// Clone returns a shallow copy so callers cannot mutate a shared claim set.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Map exposes the claims as jwt.MapClaims.
func (c Claims) Map() jwt.MapClaims {
	return jwt.MapClaims(c)
}
