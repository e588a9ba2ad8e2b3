package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/txauth/pkg/constants"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := NewSignatureInvalidError(New("bad mac"))
	assert.True(t, Is(err, ErrSignatureInvalid))
	assert.False(t, Is(err, ErrTokenExpired))

	wrapped := fmt.Errorf("decode: %w", err)
	assert.True(t, Is(wrapped, ErrSignatureInvalid))
	assert.True(t, HasCode(wrapped, constants.ErrCodeSignatureInvalid))
}

func TestWrapError(t *testing.T) {
	cause := New("connection refused")
	err := WrapError(cause, constants.ErrCodeInternal, "failed to read key blob")

	assert.Equal(t, "failed to read key blob: connection refused", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Same(t, cause, err.Unwrap())
	assert.Equal(t, http.StatusBadRequest, WrapError(cause, constants.ErrCodeInvalidArgument, "x").HTTPStatus())
}

func TestNewRateLimitedError_RoundsUp(t *testing.T) {
	assert.EqualValues(t, 1, NewRateLimitedError(0).Metadata()["retry_after"])
	assert.EqualValues(t, 3, NewRateLimitedError(2100*time.Millisecond).Metadata()["retry_after"])
	assert.Equal(t, http.StatusTooManyRequests, NewRateLimitedError(time.Second).HTTPStatus())
}

func TestToGenericErrorResponse(t *testing.T) {
	resp := ToGenericErrorResponse(NewNotFoundError("signing key"))
	assert.Equal(t, string(constants.ErrCodeNotFound), resp.Error)
	assert.Equal(t, "signing key not found", resp.ErrorDescription)
	assert.Equal(t, "signing key", resp.Metadata["resource"])

	resp = ToGenericErrorResponse(New("plain"))
	assert.Equal(t, string(constants.ErrCodeInternal), resp.Error)
	assert.NotContains(t, resp.ErrorDescription, "plain")
}

func TestHTTPStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, HTTPStatusOf(NewAuthorizationError("role")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(New("plain")))
}
