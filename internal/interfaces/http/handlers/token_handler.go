// Package handlers implements the HTTP endpoints of the token service.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/txauth/internal/application/dto"
	appService "github.com/turtacn/txauth/internal/application/service"
	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/internal/interfaces/http/middleware"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// TokenHandler exposes TokenAppService over HTTP.
type TokenHandler struct {
	app appService.TokenAppService
	log logger.Logger
}

func NewTokenHandler(app appService.TokenAppService, log logger.Logger) *TokenHandler {
	return &TokenHandler{app: app, log: log.WithComponent("TokenHandler")}
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, errors.WrapError(err, constants.ErrCodeInvalidArgument, "invalid request body"))
		return false
	}
	return true
}

func respond(c *gin.Context, status int, data interface{}, err error) {
	if err != nil {
		c.JSON(errors.HTTPStatusOf(err), dto.ErrorResponse(err, monitoring.TraceID(c.Request.Context())))
		return
	}
	c.JSON(status, dto.SuccessResponse(data, monitoring.TraceID(c.Request.Context())))
}

// IssueTokens handles POST /api/v1/tokens.
func (h *TokenHandler) IssueTokens(c *gin.Context) {
	var req dto.IssueTokenRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.app.IssueTokens(c.Request.Context(), &req)
	respond(c, http.StatusCreated, resp, err)
}

// IssueTxToken handles POST /api/v1/tokens/tx.
func (h *TokenHandler) IssueTxToken(c *gin.Context) {
	var req dto.TxTokenRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.app.IssueTxToken(c.Request.Context(), &req)
	respond(c, http.StatusCreated, resp, err)
}

// IssueServiceTokens handles POST /api/v1/tokens/service.
func (h *TokenHandler) IssueServiceTokens(c *gin.Context) {
	var req dto.ServiceTokenRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.app.IssueServiceTokens(c.Request.Context(), &req)
	respond(c, http.StatusCreated, resp, err)
}

// RefreshTokens handles POST /api/v1/tokens/refresh. The refresh token may
// come in the body or in the Refresh-Token header.
func (h *TokenHandler) RefreshTokens(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	if req.RefreshToken == "" {
		if v := c.GetHeader(constants.HeaderRefreshToken); strings.HasPrefix(v, constants.BearerPrefix) {
			req.RefreshToken = strings.TrimPrefix(v, constants.BearerPrefix)
		}
	}
	resp, err := h.app.RefreshTokens(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

// RevokeToken handles POST /api/v1/tokens/revoke.
func (h *TokenHandler) RevokeToken(c *gin.Context) {
	var req dto.RevokeTokenRequest
	if !bind(c, &req) {
		return
	}
	if p, ok := middleware.Principal(c); ok {
		h.log.Info(c.Request.Context(), "Token revocation requested", logger.String("by", p.Subject))
	}
	resp, err := h.app.RevokeToken(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

// IntrospectToken handles POST /api/v1/tokens/introspect.
func (h *TokenHandler) IntrospectToken(c *gin.Context) {
	var req dto.IntrospectTokenRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.app.IntrospectToken(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

// PublicKeys handles GET /.well-known/jwks.json.
// The response carries a strong ETag; a matching If-None-Match gets 304.
func (h *TokenHandler) PublicKeys(c *gin.Context) {
	body, err := json.Marshal(h.app.PublicKeys(c.Request.Context()))
	if err != nil {
		middleware.AbortWithError(c, errors.WrapError(err, constants.ErrCodeInternal, "failed to encode key set"))
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	c.Header("Cache-Control", "public, max-age=300")
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// WhoAmI echoes the principal of an authorized request together with the
// claims of the validated token chain.
func (h *TokenHandler) WhoAmI(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		middleware.AbortWithError(c, errors.NewClaimsNotInitializedError())
		return
	}
	body := gin.H{
		"subject":     p.Subject,
		"role":        p.Role,
		"token_type":  p.TokenType,
		"jti":         p.TokenID,
		"authorities": p.Authorities,
	}
	if cc, ok := middleware.ClaimsContext(c); ok && cc.IsInitialized() {
		claims, _ := cc.Claims()
		body["chained_claims"] = claims
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(body, monitoring.TraceID(c.Request.Context())))
}
