// Package service provides application-level services that orchestrate the
// token issuer, the authorization validator and the revocation store.
package service

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"time"

	"github.com/turtacn/txauth/internal/application/dto"
	"github.com/turtacn/txauth/internal/domain/models"
	domainService "github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
	"github.com/turtacn/txauth/pkg/utils"
)

// RevocationStore records and answers revoked jti values.
type RevocationStore interface {
	domainService.RevocationChecker
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// Claim atomically revokes jti unless it is already revoked and reports
	// whether this call did it.
	Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// TokenAppService is the use-case layer behind the HTTP, gRPC and CLI
// surfaces.
type TokenAppService interface {
	// IssueTokens issues an auth/refresh pair for a user subject.
	IssueTokens(ctx context.Context, req *dto.IssueTokenRequest) (*dto.TokenResponse, error)

	// IssueTxToken issues a single transaction token.
	IssueTxToken(ctx context.Context, req *dto.TxTokenRequest) (*dto.TokenResponse, error)

	// IssueServiceTokens issues an internal service pair or an external
	// service token.
	IssueServiceTokens(ctx context.Context, req *dto.ServiceTokenRequest) (*dto.TokenResponse, error)

	// RefreshTokens exchanges a refresh token for a new pair and revokes the
	// presented refresh token.
	RefreshTokens(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error)

	// RevokeToken denies a token until its expiry.
	RevokeToken(ctx context.Context, req *dto.RevokeTokenRequest) (*dto.TokenRevokeResponse, error)

	// IntrospectToken reports whether a token is currently usable.
	IntrospectToken(ctx context.Context, req *dto.IntrospectTokenRequest) (*dto.TokenIntrospectResponse, error)

	// PublicKeys returns the verification key set. It is empty in symmetric
	// mode.
	PublicKeys(ctx context.Context) *dto.PublicKeyResponse
}

// Dependencies groups the collaborators of the token application service.
type Dependencies struct {
	Codec       *crypto.TokenCodec
	Issuer      *domainService.TokenIssuer
	Validator   *domainService.AuthorizationValidator
	Revocations RevocationStore
	Metrics     domainService.Metrics
	Audit       domainService.AuditSink
}

type tokenAppServiceImpl struct {
	codec       *crypto.TokenCodec
	issuer      *domainService.TokenIssuer
	validator   *domainService.AuthorizationValidator
	revocations RevocationStore
	metrics     domainService.Metrics
	audit       domainService.AuditSink
	logger      logger.Logger
}

// NewTokenAppService creates a new instance of TokenAppService. Revocations
// may be nil, in which case refresh rotation is skipped and RevokeToken
// fails.
func NewTokenAppService(deps Dependencies, log logger.Logger) TokenAppService {
	if deps.Metrics == nil {
		deps.Metrics = domainService.NoopMetrics()
	}
	if deps.Audit == nil {
		deps.Audit = domainService.NoopAuditSink()
	}
	return &tokenAppServiceImpl{
		codec:       deps.Codec,
		issuer:      deps.Issuer,
		validator:   deps.Validator,
		revocations: deps.Revocations,
		metrics:     deps.Metrics,
		audit:       deps.Audit,
		logger:      log.WithComponent("TokenAppService"),
	}
}

func (s *tokenAppServiceImpl) IssueTokens(ctx context.Context, req *dto.IssueTokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	pair, err := s.issuer.IssueAuthPair(ctx, req.Subject, models.Claims(req.Claims))
	if err != nil {
		return nil, err
	}
	return pairResponse(pair), nil
}

func (s *tokenAppServiceImpl) IssueTxToken(ctx context.Context, req *dto.TxTokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	tok, err := s.issuer.IssueTxToken(ctx, req.Subject, constants.TokenType(req.TokenType), models.Claims(req.Claims))
	if err != nil {
		return nil, err
	}
	return tokenResponse(tok), nil
}

func (s *tokenAppServiceImpl) IssueServiceTokens(ctx context.Context, req *dto.ServiceTokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	id := domainService.ServiceIdentity{
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
		Owner:       req.Owner,
		Audience:    req.Audience,
	}
	if req.External {
		tok, err := s.issuer.IssueExternalServiceToken(ctx, id)
		if err != nil {
			return nil, err
		}
		return tokenResponse(tok), nil
	}
	pair, err := s.issuer.IssueInternalServicePair(ctx, id)
	if err != nil {
		return nil, err
	}
	return pairResponse(pair), nil
}

// RefreshTokens implements refresh token rotation
func (s *tokenAppServiceImpl) RefreshTokens(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	// 1. Validate the refresh token through the refresh mode pipeline
	principal, err := s.validator.Validate(ctx, domainService.ValidationRequest{
		Mode:    domainService.ModeRefresh,
		Headers: domainService.HeaderMap{constants.HeaderRefreshToken: constants.BearerPrefix + req.RefreshToken},
	})
	if err != nil {
		return nil, err
	}

	// 2. Rotate: claim the presented refresh token before minting anything,
	// so concurrent presentations of the same token yield one new pair.
	if s.revocations != nil {
		won, err := s.revocations.Claim(ctx, principal.TokenID, principal.Claims.ExpiresAt())
		if err != nil {
			s.logger.Error(ctx, "Failed to revoke rotated refresh token", err, logger.String("jti", principal.TokenID))
			return nil, err
		}
		if !won {
			s.logger.Warn(ctx, "Refresh token already rotated", logger.String("jti", principal.TokenID))
			return nil, errors.NewAuthorizationError("Token validation failed")
		}
		s.recordRevoke(ctx, principal.Claims, "rotated")
	}

	// 3. Issue the new pair carrying the caller's role and custom claims
	pair, err := s.issuer.IssueAuthPair(ctx, principal.Subject, carryOver(principal.Claims))
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Refresh token rotated",
		logger.String("subject", principal.Subject),
		logger.String("old_jti", principal.TokenID),
		logger.String("new_jti", pair.Secondary.JTI),
	)
	return pairResponse(pair), nil
}

func (s *tokenAppServiceImpl) RevokeToken(ctx context.Context, req *dto.RevokeTokenRequest) (*dto.TokenRevokeResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if s.revocations == nil {
		return nil, errors.NewError(constants.ErrCodeInternal, http.StatusNotImplemented, "Revocation is disabled", "no revocation store is configured")
	}

	claims, err := s.codec.Decode(req.Token, s.issuer.Issuer())
	if err != nil {
		return nil, err
	}
	if claims.ID() == "" {
		return nil, errors.NewInvalidArgumentError("token has no jti")
	}

	reason := req.Reason
	if reason == "" {
		reason = "revoked"
	}
	if err := s.revoke(ctx, claims, reason); err != nil {
		return nil, err
	}
	return &dto.TokenRevokeResponse{Revoked: true, JTI: claims.ID(), RevokedAt: s.codec.Now().UTC()}, nil
}

func (s *tokenAppServiceImpl) revoke(ctx context.Context, claims models.Claims, reason string) error {
	if err := s.revocations.Revoke(ctx, claims.ID(), claims.ExpiresAt()); err != nil {
		return err
	}
	s.recordRevoke(ctx, claims, reason)
	return nil
}

func (s *tokenAppServiceImpl) recordRevoke(ctx context.Context, claims models.Claims, reason string) {
	s.metrics.RecordTokenRevoke(reason)
	event := models.NewAuditEvent(models.AuditEventTokenRevoked, "success").
		WithSubject(claims.Subject()).
		WithToken(claims.ID(), claims.Type())
	event.Message = reason
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn(ctx, "Failed to record audit event", logger.Error(err))
	}
}

func (s *tokenAppServiceImpl) IntrospectToken(ctx context.Context, req *dto.IntrospectTokenRequest) (*dto.TokenIntrospectResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	claims, err := s.codec.Decode(req.Token, s.issuer.Issuer(), crypto.WithExpiryCheck())
	if err != nil {
		s.logger.Debug(ctx, "Introspected token is inactive", logger.Error(err))
		return &dto.TokenIntrospectResponse{Active: false}, nil
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID())
		if err != nil {
			return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to check revocation")
		}
		if revoked {
			return &dto.TokenIntrospectResponse{Active: false}, nil
		}
	}
	return &dto.TokenIntrospectResponse{
		Active:    true,
		Sub:       claims.Subject(),
		Iss:       claims.Issuer(),
		Aud:       claims.Audience(),
		Jti:       claims.ID(),
		TokenType: string(claims.Type()),
		Role:      string(claims.Role()),
		ServiceID: claims.ServiceID(),
		Exp:       claims.ExpiresAt().Unix(),
		Iat:       claims.IssuedAt().Unix(),
	}, nil
}

func (s *tokenAppServiceImpl) PublicKeys(_ context.Context) *dto.PublicKeyResponse {
	resp := &dto.PublicKeyResponse{Keys: []dto.JWKKeyDTO{}}
	provider := s.codec.Provider()
	pub, ok := provider.VerificationKey().(*rsa.PublicKey)
	if !ok {
		return resp
	}
	resp.Keys = append(resp.Keys, dto.JWKKeyDTO{
		Kid: provider.KeyID(),
		Kty: "RSA",
		Use: "sig",
		Alg: provider.Algorithm().Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	})
	return resp
}

// carryOver keeps the claims a rotated pair inherits. Registered claims are
// re-issued by the codec.
func carryOver(claims models.Claims) models.Claims {
	out := claims.Clone()
	for _, name := range []string{
		constants.ClaimSubject, constants.ClaimIssuer, constants.ClaimTokenID,
		constants.ClaimIssuedAt, constants.ClaimExpiresAt, constants.ClaimType, "nbf",
	} {
		delete(out, name)
	}
	return out
}

func tokenResponse(tok *models.IssuedToken) *dto.TokenResponse {
	return &dto.TokenResponse{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		ExpiresIn:   tok.ExpiresIn(),
		IssuedAt:    tok.IssuedAt.Unix(),
	}
}

func pairResponse(pair *models.TokenPair) *dto.TokenResponse {
	resp := tokenResponse(pair.Primary)
	resp.RefreshToken = pair.Secondary.Value
	resp.RefreshExpiresIn = pair.Secondary.ExpiresIn()
	return resp
}
