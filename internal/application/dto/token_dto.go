package dto

import (
	"time"
)

// IssueTokenRequest 用户令牌对颁发请求 DTO
type IssueTokenRequest struct {
	Subject string                 `json:"subject" validate:"required,max=255"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
}

// TxTokenRequest 事务令牌颁发请求 DTO
type TxTokenRequest struct {
	Subject   string                 `json:"subject" validate:"required,max=255"`
	TokenType string                 `json:"token_type" validate:"required,txtype"`
	Claims    map[string]interface{} `json:"claims,omitempty"`
}

// ServiceTokenRequest 服务令牌颁发请求 DTO
type ServiceTokenRequest struct {
	ServiceID   string `json:"service_id" validate:"required,max=128"`
	ServiceName string `json:"service_name" validate:"omitempty,max=128"`
	Owner       string `json:"owner" validate:"omitempty,max=128"`
	Audience    string `json:"audience" validate:"required,max=255"`
	External    bool   `json:"external"`
}

// RefreshTokenRequest 令牌刷新请求 DTO
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RevokeTokenRequest 令牌吊销请求 DTO
type RevokeTokenRequest struct {
	Token  string `json:"token" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// IntrospectTokenRequest 令牌内省请求 DTO
type IntrospectTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenResponse 令牌响应 DTO. RefreshToken carries the secondary token of a
// pair (refresh token or chained tx token).
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	IssuedAt         int64  `json:"issued_at"`
}

// TokenIntrospectResponse 令牌内省响应 DTO
type TokenIntrospectResponse struct {
	Active    bool   `json:"active"`
	Sub       string `json:"sub,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Jti       string `json:"jti,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Role      string `json:"rol,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// TokenRevokeResponse 令牌吊销响应 DTO
type TokenRevokeResponse struct {
	Revoked   bool      `json:"revoked"`
	JTI       string    `json:"jti"`
	RevokedAt time.Time `json:"revoked_at"`
}

// PublicKeyResponse 公钥响应 DTO
type PublicKeyResponse struct {
	Keys []JWKKeyDTO `json:"keys"`
}

// JWKKeyDTO JSON Web Key DTO
type JWKKeyDTO struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}
