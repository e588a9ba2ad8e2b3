// Package constants defines system-wide constants for the txauth token core.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Type Constants
// ================================================================================

// TokenType is the value of the "type" claim. It tags the category a token
// was issued for and is checked against the active validation mode.
type TokenType string

const (
	// TokenTypeAuth is a short-lived end-user authentication token.
	TokenTypeAuth TokenType = "auth"

	// TokenTypeRefresh is the long-lived companion of an auth token.
	TokenTypeRefresh TokenType = "refresh"

	// TokenTypeTxUsers is a transaction token chained after a primary token
	// to carry user-scoped claims into an internal service.
	TokenTypeTxUsers TokenType = "tx-users"

	// TokenTypeTxService is an internal service-to-service auth token.
	TokenTypeTxService TokenType = "tx-internal"

	// TokenTypeTxExternal is a token handed to an external service.
	TokenTypeTxExternal TokenType = "tx-external"
)

// IsTx reports whether the token type belongs to the transaction family.
func (t TokenType) IsTx() bool {
	switch t {
	case TokenTypeTxUsers, TokenTypeTxService, TokenTypeTxExternal:
		return true
	}
	return false
}

// Valid reports whether t is one of the fixed token-category tags.
func (t TokenType) Valid() bool {
	return t == TokenTypeAuth || t == TokenTypeRefresh || t.IsTx()
}

// ================================================================================
// Role Constants
// ================================================================================

// Role is the value of the "rol" claim.
type Role string

const (
	// RoleUser is the default role of end-user tokens.
	RoleUser Role = "User"

	// RoleService is carried by every service token.
	RoleService Role = "Service"

	// RoleAdmin is the highest role.
	RoleAdmin Role = "Admin"
)

// Rank orders roles User < Service < Admin. Unknown roles rank below User.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleService:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether a token carrying role r may call an operation
// that requires role required. An empty requirement is always satisfied and
// an unknown one never is.
func (r Role) Satisfies(required Role) bool {
	if required == "" {
		return true
	}
	if required.Rank() == 0 {
		return false
	}
	return r.Rank() >= required.Rank()
}

// Authority returns the granted-authority string derived from the role.
func (r Role) Authority() string {
	switch r {
	case RoleAdmin:
		return "ROLE_ADMIN"
	case RoleService:
		return "ROLE_SERVICE"
	default:
		return "ROLE_USER"
	}
}

// ================================================================================
// Claim Names
// ================================================================================

const (
	ClaimSubject   = "sub"
	ClaimIssuer    = "iss"
	ClaimAudience  = "aud"
	ClaimTokenID   = "jti"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimRole      = "rol"
	ClaimType      = "type"
	ClaimServiceID = "serviceId"
	ClaimService   = "service"
	ClaimOwner     = "owner"
)

// ================================================================================
// Header Constants
// ================================================================================

const (
	// HeaderAuthorization carries the primary bearer token.
	HeaderAuthorization = "Authorization"

	// HeaderRefreshToken carries the refresh bearer token.
	HeaderRefreshToken = "Refresh-Token"

	// HeaderTxToken carries the chained transaction token.
	HeaderTxToken = "TX-TOKEN"

	// BearerPrefix precedes every token in the headers above.
	BearerPrefix = "Bearer "
)

// ================================================================================
// Signing Modes
// ================================================================================

// SigningMode selects the key-management strategy. The numeric values match
// the configuration surface.
type SigningMode int

const (
	// SigningModeSymmetric signs with an HMAC secret derived from a passphrase.
	SigningModeSymmetric SigningMode = 1

	// SigningModeAsymmetric signs with an RSA private key.
	SigningModeAsymmetric SigningMode = 2
)

// String returns the human-readable name of the mode.
func (m SigningMode) String() string {
	switch m {
	case SigningModeSymmetric:
		return "symmetric"
	case SigningModeAsymmetric:
		return "asymmetric"
	default:
		return "unknown"
	}
}

// RSAKeyBits is the modulus size of generated RSA key pairs.
const RSAKeyBits = 2048

// ================================================================================
// Token Lifetime Constants
// ================================================================================

const (
	// AuthTokenMaxTTL is the largest auth-token lifetime accepted from
	// configuration. Larger values are replaced by AuthTokenDefaultTTL.
	AuthTokenMaxTTL = 30 * time.Minute

	// AuthTokenDefaultTTL replaces an out-of-range auth-token lifetime.
	AuthTokenDefaultTTL = 5 * time.Minute

	// RefreshTokenMinTTL is the floor for refresh-token lifetimes.
	RefreshTokenMinTTL = 30 * time.Minute

	// TxTokenDefaultTTL is used for tx-tokens when the configured refresh
	// lifetime is below RefreshTokenMinTTL.
	TxTokenDefaultTTL = 1 * time.Hour

	// ServiceTokenTTL is the fixed lifetime of service tokens.
	ServiceTokenTTL = 24 * time.Hour
)

// ================================================================================
// Defaults
// ================================================================================

const (
	// DefaultIssuer is used when no issuer is configured.
	DefaultIssuer = "txauth"

	// DefaultAudience is used when no audience is configured.
	DefaultAudience = "txauth-api"

	// DefaultPublicKeyPath is the default location of the X.509 public key.
	DefaultPublicKeyPath = "keys/public.pem"

	// DefaultPrivateKeyPath is the default location of the PKCS#8 private key.
	DefaultPrivateKeyPath = "keys/private.pem"

	// EncryptedValuePrefix and EncryptedValueSuffix wrap encrypted config values.
	EncryptedValuePrefix = "ENC("
	EncryptedValueSuffix = ")"
)

// ================================================================================
// Log Levels
// ================================================================================

// LogLevel represents the logging severity level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ParseLogLevel converts a configuration string into a LogLevel. Unknown
// values map to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN", "warning":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	case "fatal", "FATAL":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type of keys stored in context.Context by this module.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeySubject   ContextKey = "subject"
	ContextKeyTraceID   ContextKey = "trace_id"
)

// ================================================================================
// Error Codes
// ================================================================================

// ErrorCode is the machine-readable code carried by every CBCError.
type ErrorCode string

const (
	ErrCodeKeyLoad              ErrorCode = "key_load_error"
	ErrCodeKeyGeneration        ErrorCode = "key_generation_error"
	ErrCodeTokenExtraction      ErrorCode = "token_extraction_error"
	ErrCodeSubjectMissing       ErrorCode = "subject_missing"
	ErrCodeTokenExpired         ErrorCode = "token_expired"
	ErrCodeUndefinedToken       ErrorCode = "undefined_token"
	ErrCodeMalformedToken       ErrorCode = "malformed_token"
	ErrCodeSignatureInvalid     ErrorCode = "signature_invalid"
	ErrCodeIssuerMismatch       ErrorCode = "issuer_mismatch"
	ErrCodeExpiredToken         ErrorCode = "expired_token"
	ErrCodeInvalidTokenType     ErrorCode = "invalid_token_type"
	ErrCodeAuthorization        ErrorCode = "authorization_error"
	ErrCodeCryptoSecurity       ErrorCode = "crypto_security_error"
	ErrCodeClaimsNotInitialized ErrorCode = "claims_not_initialized"
	ErrCodeInvalidArgument      ErrorCode = "invalid_argument"
	ErrCodeNotFound             ErrorCode = "not_found"
	ErrCodeInternal             ErrorCode = "internal_error"
	ErrCodeRateLimited          ErrorCode = "rate_limited"
)
