// Package errors defines custom error types and error handling utilities for the txauth token core.
// Every failure carries a machine-readable code, a transport status hint and an
// optional cause so boundary handlers can map it without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/turtacn/txauth/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// CBCError represents a structured error with additional metadata
type CBCError interface {
	error

	// Code returns the machine-readable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) CBCError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) CBCError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of CBCError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Code returns the error code
func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *baseError) Description() string {
	return e.description
}

// Message returns the message without the cause chain.
func (e *baseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause error
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is matches any CBCError carrying the same code, so sentinel values such as
// ErrSignatureInvalid work with errors.Is.
func (e *baseError) Is(target error) bool {
	t, ok := target.(CBCError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) CBCError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) CBCError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new CBCError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) CBCError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinels
// ================================================================================

// Sentinels for errors.Is. They are never returned directly; constructors
// below build fresh values with the same codes.
var (
	ErrKeyLoad              = NewError(constants.ErrCodeKeyLoad, http.StatusInternalServerError, "key load failed", "")
	ErrKeyGeneration        = NewError(constants.ErrCodeKeyGeneration, http.StatusInternalServerError, "key generation failed", "")
	ErrTokenExtraction      = NewError(constants.ErrCodeTokenExtraction, http.StatusUnauthorized, "bearer token missing or malformed", "")
	ErrSubjectMissing       = NewError(constants.ErrCodeSubjectMissing, http.StatusUnauthorized, "token subject missing", "")
	ErrTokenExpired         = NewError(constants.ErrCodeTokenExpired, http.StatusUnauthorized, "token has expired", "")
	ErrUndefinedToken       = NewError(constants.ErrCodeUndefinedToken, http.StatusUnauthorized, "token could not be processed", "")
	ErrMalformedToken       = NewError(constants.ErrCodeMalformedToken, http.StatusUnauthorized, "token is malformed", "")
	ErrSignatureInvalid     = NewError(constants.ErrCodeSignatureInvalid, http.StatusUnauthorized, "token signature is invalid", "")
	ErrIssuerMismatch       = NewError(constants.ErrCodeIssuerMismatch, http.StatusUnauthorized, "token issuer mismatch", "")
	ErrExpiredToken         = NewError(constants.ErrCodeExpiredToken, http.StatusUnauthorized, "token is expired", "")
	ErrInvalidTokenType     = NewError(constants.ErrCodeInvalidTokenType, http.StatusUnauthorized, "invalid token type", "")
	ErrAuthorization        = NewError(constants.ErrCodeAuthorization, http.StatusForbidden, "authorization failed", "")
	ErrCryptoSecurity       = NewError(constants.ErrCodeCryptoSecurity, http.StatusInternalServerError, "secret cipher failure", "")
	ErrClaimsNotInitialized = NewError(constants.ErrCodeClaimsNotInitialized, http.StatusInternalServerError, "claims context not initialized", "")
	ErrInvalidArgument      = NewError(constants.ErrCodeInvalidArgument, http.StatusBadRequest, "invalid argument", "")
	ErrNotFound             = NewError(constants.ErrCodeNotFound, http.StatusNotFound, "not found", "")
	ErrInternal             = NewError(constants.ErrCodeInternal, http.StatusInternalServerError, "internal error", "")
	ErrRateLimited          = NewError(constants.ErrCodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", "")
)

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// NewKeyLoadError reports a key file that could not be read or parsed.
func NewKeyLoadError(path string, cause error) CBCError {
	return NewError(constants.ErrCodeKeyLoad, http.StatusInternalServerError,
		"key load failed", fmt.Sprintf("failed to load key %q", path)).
		WithCause(cause).
		WithMetadata("path", path)
}

// NewKeyGenerationError reports a failed key pair generation or persistence.
func NewKeyGenerationError(cause error) CBCError {
	return NewError(constants.ErrCodeKeyGeneration, http.StatusInternalServerError,
		"key generation failed", "failed to generate signing key pair").
		WithCause(cause)
}

// NewTokenExtractionError reports a missing header or a value without the bearer prefix.
func NewTokenExtractionError(header string) CBCError {
	return NewError(constants.ErrCodeTokenExtraction, http.StatusUnauthorized,
		"bearer token missing or malformed",
		fmt.Sprintf("%s header is missing or does not begin with %q", header, constants.BearerPrefix)).
		WithMetadata("header", header)
}

// NewSubjectMissingError reports a token whose subject could not be read.
func NewSubjectMissingError(cause error) CBCError {
	return NewError(constants.ErrCodeSubjectMissing, http.StatusUnauthorized,
		"token subject missing", "Unable to get subject from token").
		WithCause(cause)
}

// NewTokenExpiredError reports an expired token found during subject resolution.
func NewTokenExpiredError(cause error) CBCError {
	return NewError(constants.ErrCodeTokenExpired, http.StatusUnauthorized,
		"token has expired", "Token has expired").
		WithCause(cause)
}

// NewUndefinedTokenError reports any other failure while resolving the subject.
func NewUndefinedTokenError(cause error) CBCError {
	return NewError(constants.ErrCodeUndefinedToken, http.StatusUnauthorized,
		"token could not be processed", "Undefined token").
		WithCause(cause)
}

// NewMalformedTokenError reports an unparseable token string.
func NewMalformedTokenError(cause error) CBCError {
	return NewError(constants.ErrCodeMalformedToken, http.StatusUnauthorized,
		"token is malformed", "Token is malformed").
		WithCause(cause)
}

// NewSignatureInvalidError reports a token whose signature does not verify.
func NewSignatureInvalidError(cause error) CBCError {
	return NewError(constants.ErrCodeSignatureInvalid, http.StatusUnauthorized,
		"token signature is invalid", "Token signature verification failed").
		WithCause(cause)
}

// NewIssuerMismatchError reports an unexpected issuer claim.
func NewIssuerMismatchError(expected, actual string) CBCError {
	return NewError(constants.ErrCodeIssuerMismatch, http.StatusUnauthorized,
		"token issuer mismatch",
		fmt.Sprintf("Invalid issuer claim: expected '%s', got '%s'", expected, actual)).
		WithMetadata("expected", expected).
		WithMetadata("actual", actual)
}

// NewExpiredTokenError reports a token past its expiry.
func NewExpiredTokenError(cause error) CBCError {
	return NewError(constants.ErrCodeExpiredToken, http.StatusUnauthorized,
		"token is expired", "Token is expired").
		WithCause(cause)
}

// NewInvalidTokenTypeError reports a type claim that does not match the mode.
func NewInvalidTokenTypeError(expected, actual constants.TokenType) CBCError {
	return NewError(constants.ErrCodeInvalidTokenType, http.StatusUnauthorized,
		"invalid token type",
		fmt.Sprintf("Invalid token type: expected '%s', got '%s'", expected, actual)).
		WithMetadata("expected", string(expected)).
		WithMetadata("actual", string(actual))
}

// NewAuthorizationError reports a failed validation or a role violation.
func NewAuthorizationError(reason string) CBCError {
	return NewError(constants.ErrCodeAuthorization, http.StatusForbidden,
		"authorization failed", reason).
		WithMetadata("reason", reason)
}

// NewCryptoSecurityError reports an at-rest cipher failure.
func NewCryptoSecurityError(message string, cause error) CBCError {
	return NewError(constants.ErrCodeCryptoSecurity, http.StatusInternalServerError,
		"secret cipher failure", message).
		WithCause(cause)
}

// NewClaimsNotInitializedError reports a read before SetClaims.
func NewClaimsNotInitializedError() CBCError {
	return NewError(constants.ErrCodeClaimsNotInitialized, http.StatusInternalServerError,
		"claims context not initialized", "Claims have not been initialized for this request")
}

// NewInvalidArgumentError reports bad caller input.
func NewInvalidArgumentError(format string, args ...interface{}) CBCError {
	return NewError(constants.ErrCodeInvalidArgument, http.StatusBadRequest,
		"invalid argument", fmt.Sprintf(format, args...))
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource string) CBCError {
	return NewError(constants.ErrCodeNotFound, http.StatusNotFound,
		"not found", fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

// NewRateLimitedError reports a throttled caller.
func NewRateLimitedError(retryAfter time.Duration) CBCError {
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return NewError(constants.ErrCodeRateLimited, http.StatusTooManyRequests,
		"rate limit exceeded", "Too many requests").
		WithMetadata("retry_after", secs)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// IsCBCError checks if an error is a CBCError
func IsCBCError(err error) bool {
	var cbcErr CBCError
	return stderrors.As(err, &cbcErr)
}

// AsCBCError attempts to extract a CBCError from the error chain
func AsCBCError(err error) (CBCError, bool) {
	var cbcErr CBCError
	ok := stderrors.As(err, &cbcErr)
	return cbcErr, ok
}

// HasCode reports whether the first CBCError in err's chain carries code.
func HasCode(err error, code constants.ErrorCode) bool {
	cbcErr, ok := AsCBCError(err)
	return ok && cbcErr.Code() == code
}

// WrapError wraps a generic error into a CBCError
func WrapError(err error, code constants.ErrorCode, message string) CBCError {
	httpStatus := http.StatusInternalServerError
	switch code {
	case constants.ErrCodeInvalidArgument:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case constants.ErrCodeAuthorization:
		httpStatus = http.StatusForbidden
	}
	return NewError(code, httpStatus, message, message).WithCause(err)
}

// Is is a re-export of the standard library errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a re-export of the standard library errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// New is a re-export of the standard library errors.New
func New(text string) error {
	return stderrors.New(text)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts a CBCError to an ErrorResponse
func ToErrorResponse(err CBCError) *ErrorResponse {
	desc := err.Description()
	if m, ok := err.(interface{ Message() string }); ok && m.Message() != "" {
		desc = m.Message()
	}
	return &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: desc,
		Metadata:         err.Metadata(),
	}
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) *ErrorResponse {
	if cbcErr, ok := AsCBCError(err); ok {
		return ToErrorResponse(cbcErr)
	}
	return &ErrorResponse{
		Error:            string(constants.ErrCodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}

// HTTPStatusOf returns the transport status carried by err, or 500.
func HTTPStatusOf(err error) int {
	if cbcErr, ok := AsCBCError(err); ok && cbcErr.HTTPStatus() != 0 {
		return cbcErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
