package models

import "github.com/turtacn/txauth/pkg/constants"

// User is the identity a token subject resolves to.
// User 是令牌主体解析得到的身份。
type User struct {
	Username string
	Role     constants.Role
	Enabled  bool
}

// Principal is the authorized caller handed back after a successful validation.
// Principal 是验证成功后返回的已授权调用方。
type Principal struct {
	// Subject is the resolved user name.
	Subject string

	// Role is the role carried by the primary token.
	Role constants.Role

	// TokenType is the type of the primary token.
	TokenType constants.TokenType

	// TokenID is the jti of the primary token.
	TokenID string

	// Authorities are the granted-authority strings derived from the role.
	Authorities []string

	// Claims is the verified claim set of the primary token.
	Claims Claims
}

// HasAuthority reports whether the principal was granted authority.
func (p *Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// NewPrincipal builds a principal for user from the primary token's claims.
func NewPrincipal(user *User, claims Claims) *Principal {
	role := claims.Role()
	return &Principal{
		Subject:     user.Username,
		Role:        role,
		TokenType:   claims.Type(),
		TokenID:     claims.ID(),
		Authorities: []string{role.Authority()},
		Claims:      claims,
	}
}
