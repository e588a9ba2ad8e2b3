// Package models defines the domain models for the txauth token core.
// This file contains the logical Token model reconstructed from a wire string.
package models

import (
	"time"

	"github.com/turtacn/txauth/pkg/constants"
)

// Token is the logical view of a signed bearer token. It is never stored;
// it is rebuilt from verified claims whenever a caller needs typed access.
// Token 是已签名持有者令牌的逻辑视图。它从不存储，
// 只在调用方需要类型化访问时从已验证的声明中重建。
type Token struct {
	// JTI is the unique token identifier.
	// JTI 是令牌的唯一标识符。
	JTI string `json:"jti"`

	// Subject identifies the principal the token was issued to.
	// Subject 标识令牌所颁发给的主体。
	Subject string `json:"sub"`

	// Issuer identifies the trust domain that signed the token.
	// Issuer 标识签署令牌的信任域。
	Issuer string `json:"iss"`

	// Audience is the intended recipient.
	// Audience 是预期的接收方。
	Audience string `json:"aud"`

	// Role is the "rol" claim.
	Role constants.Role `json:"rol"`

	// Type is the token-category tag.
	// Type 是令牌类别标签。
	Type constants.TokenType `json:"type"`

	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`

	// Claims holds the complete verified claim set, including the fields above.
	// Claims 保存完整的已验证声明集，包括上述字段。
	Claims Claims `json:"-"`
}

// TokenFromClaims builds a Token view over verified claims.
func TokenFromClaims(c Claims) *Token {
	return &Token{
		JTI:       c.ID(),
		Subject:   c.Subject(),
		Issuer:    c.Issuer(),
		Audience:  c.Audience(),
		Role:      c.Role(),
		Type:      c.Type(),
		IssuedAt:  c.IssuedAt(),
		ExpiresAt: c.ExpiresAt(),
		Claims:    c,
	}
}

// IsExpired reports whether the token is expired at now. A token whose
// expiry equals now is expired.
// IsExpired 报告令牌在 now 时是否已过期。
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TimeUntilExpiry returns the remaining lifetime at now, or 0 if expired.
func (t *Token) TimeUntilExpiry(now time.Time) time.Duration {
	if t.IsExpired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// IsServiceToken reports whether the token was issued to a service.
func (t *Token) IsServiceToken() bool {
	return t.Role == constants.RoleService
}

// IssuedToken is what the issuer hands back: the signed string plus the
// facts a caller needs without parsing it again.
// IssuedToken 是签发者返回的内容：签名字符串以及调用方无需再次解析即可获得的信息。
type IssuedToken struct {
	Value     string              `json:"token"`
	Type      constants.TokenType `json:"type"`
	JTI       string              `json:"jti"`
	Subject   string              `json:"sub"`
	IssuedAt  time.Time           `json:"issued_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ExpiresIn returns the lifetime in whole seconds.
func (t *IssuedToken) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// TokenPair groups two tokens issued together: auth+refresh or
// service-auth+tx.
type TokenPair struct {
	Primary   *IssuedToken `json:"primary"`
	Secondary *IssuedToken `json:"secondary"`
}
