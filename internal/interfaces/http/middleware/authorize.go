// Package middleware provides the gin middleware of the txauth HTTP server.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const (
	principalKey     = "txauth.principal"
	claimsContextKey = "txauth.claims_context"
)

// Authorize runs the validation pipeline of mode on every request and
// aborts with the mapped status on rejection. An empty role accepts any
// role. On success the principal and the request's ClaimsContext are
// available from the gin context and from the request context.
// Authorize 在每个请求上执行指定模式的验证流水线。
func Authorize(validator *service.AuthorizationValidator, mode service.Mode, role constants.Role, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc := service.NewClaimsContext()
		principal, err := validator.Validate(c.Request.Context(), service.ValidationRequest{
			Mode:         mode,
			Headers:      c.Request.Header,
			RequiredRole: role,
			Claims:       cc,
		})
		if err != nil {
			log.Debug(c.Request.Context(), "Request rejected",
				logger.String("path", c.FullPath()),
				logger.String("mode", mode.String()),
				logger.Error(err),
			)
			AbortWithError(c, err)
			return
		}

		ctx := service.WithPrincipal(c.Request.Context(), principal)
		ctx = service.WithClaimsContext(ctx, cc)
		c.Request = c.Request.WithContext(ctx)
		c.Set(principalKey, principal)
		c.Set(claimsContextKey, cc)
		c.Next()
	}
}

// AbortWithError writes the error body with the status carried by err.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatusOf(err), errors.ToGenericErrorResponse(err))
}

// Principal returns the principal stored by Authorize.
func Principal(c *gin.Context) (*models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok
}

// ClaimsContext returns the ClaimsContext stored by Authorize.
func ClaimsContext(c *gin.Context) (*service.ClaimsContext, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	cc, ok := v.(*service.ClaimsContext)
	return cc, ok
}
