package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const tracerName = "github.com/turtacn/txauth/internal/domain/service"

// ServiceIdentity names a service that tokens are issued to.
type ServiceIdentity struct {
	ServiceID   string
	ServiceName string
	Owner       string
	Audience    string
}

func (s ServiceIdentity) claims(tokenType constants.TokenType) models.Claims {
	return models.Claims{
		constants.ClaimRole:      string(constants.RoleService),
		constants.ClaimType:      string(tokenType),
		constants.ClaimServiceID: s.ServiceID,
		constants.ClaimService:   s.ServiceName,
		constants.ClaimOwner:     s.Owner,
		constants.ClaimAudience:  s.Audience,
	}
}

// TokenIssuer produces the claim set and lifetime of every token category
// and signs them with a TokenCodec.
type TokenIssuer struct {
	codec      *crypto.TokenCodec
	issuer     string
	authTTL    time.Duration
	refreshTTL time.Duration
	txTTL      time.Duration
	metrics    Metrics
	audit      AuditSink
	tracer     trace.Tracer
	log        logger.Logger
}

// NewTokenIssuer creates a TokenIssuer. Configured lifetimes are clamped
// once, here: see ClampAuthTTL, ClampRefreshTTL and TxTokenTTL.
// metrics and audit may be nil.
func NewTokenIssuer(codec *crypto.TokenCodec, cfg *config.SecurityConfig, metrics Metrics, audit AuditSink, log logger.Logger) *TokenIssuer {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if audit == nil {
		audit = NoopAuditSink()
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = constants.DefaultIssuer
	}

	s := &TokenIssuer{
		codec:      codec,
		issuer:     issuer,
		authTTL:    ClampAuthTTL(cfg.AuthTTL),
		refreshTTL: ClampRefreshTTL(cfg.RefreshTTL),
		txTTL:      TxTokenTTL(cfg.RefreshTTL),
		metrics:    metrics,
		audit:      audit,
		tracer:     otel.Tracer(tracerName),
		log:        log.WithComponent("TokenIssuer"),
	}

	ctx := context.Background()
	if s.authTTL != cfg.AuthTTL {
		s.log.Warn(ctx, "Auth token TTL out of range, using default",
			logger.Duration("configured", cfg.AuthTTL), logger.Duration("effective", s.authTTL))
	}
	if s.refreshTTL != cfg.RefreshTTL {
		s.log.Warn(ctx, "Refresh token TTL below minimum, raised",
			logger.Duration("configured", cfg.RefreshTTL), logger.Duration("effective", s.refreshTTL))
	}
	return s
}

// ClampAuthTTL replaces an auth-token lifetime above 30 minutes, or not
// positive, with the 5 minute default.
func ClampAuthTTL(d time.Duration) time.Duration {
	if d <= 0 || d > constants.AuthTokenMaxTTL {
		return constants.AuthTokenDefaultTTL
	}
	return d
}

// ClampRefreshTTL raises a refresh-token lifetime below 30 minutes to 30 minutes.
func ClampRefreshTTL(d time.Duration) time.Duration {
	if d < constants.RefreshTokenMinTTL {
		return constants.RefreshTokenMinTTL
	}
	return d
}

// TxTokenTTL is the configured refresh lifetime when it is at least 30
// minutes, and one hour otherwise.
func TxTokenTTL(refreshTTL time.Duration) time.Duration {
	if refreshTTL < constants.RefreshTokenMinTTL {
		return constants.TxTokenDefaultTTL
	}
	return refreshTTL
}

// Issuer returns the "iss" value stamped on every token.
func (s *TokenIssuer) Issuer() string { return s.issuer }

// AuthTTL returns the effective auth-token lifetime.
func (s *TokenIssuer) AuthTTL() time.Duration { return s.authTTL }

// RefreshTTL returns the effective refresh-token lifetime.
func (s *TokenIssuer) RefreshTTL() time.Duration { return s.refreshTTL }

// TxTTL returns the effective tx-token lifetime.
func (s *TokenIssuer) TxTTL() time.Duration { return s.txTTL }

// IssueAuthPair issues an auth token and its refresh token for subject.
// extra claims are copied into both; "type" is always overwritten and a
// caller-supplied "jti" is dropped so each token gets its own id.
func (s *TokenIssuer) IssueAuthPair(ctx context.Context, subject string, extra models.Claims) (*models.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "TokenIssuer.IssueAuthPair")
	defer span.End()

	if subject == "" {
		return nil, s.fail(span, errors.NewInvalidArgumentError("subject is required"))
	}

	auth, err := s.issue(ctx, subject, constants.TokenTypeAuth, s.authTTL, extra)
	if err != nil {
		return nil, s.fail(span, err)
	}
	refresh, err := s.issue(ctx, subject, constants.TokenTypeRefresh, s.refreshTTL, extra)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return &models.TokenPair{Primary: auth, Secondary: refresh}, nil
}

// IssueTxToken issues a transaction token of txType for subject. txType
// must be one of the tx-class types.
func (s *TokenIssuer) IssueTxToken(ctx context.Context, subject string, txType constants.TokenType, extra models.Claims) (*models.IssuedToken, error) {
	ctx, span := s.tracer.Start(ctx, "TokenIssuer.IssueTxToken",
		trace.WithAttributes(attribute.String("token.type", string(txType))))
	defer span.End()

	if !txType.IsTx() {
		return nil, s.fail(span, errors.NewInvalidTokenTypeError(constants.TokenTypeTxUsers, txType))
	}
	if subject == "" {
		return nil, s.fail(span, errors.NewInvalidArgumentError("subject is required"))
	}
	tok, err := s.issue(ctx, subject, txType, s.txTTL, extra)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return tok, nil
}

// IssueInternalServicePair issues the service-auth token (tx-internal) and
// its companion tx-token (tx-users) for an internal service. Both carry
// rol=Service, expire in 24 hours and use the service id as subject.
func (s *TokenIssuer) IssueInternalServicePair(ctx context.Context, id ServiceIdentity) (*models.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "TokenIssuer.IssueInternalServicePair",
		trace.WithAttributes(attribute.String("service.id", id.ServiceID)))
	defer span.End()

	if err := validateServiceIdentity(id); err != nil {
		return nil, s.fail(span, err)
	}

	serviceAuth, err := s.issue(ctx, id.ServiceID, constants.TokenTypeTxService, constants.ServiceTokenTTL, id.claims(constants.TokenTypeTxService))
	if err != nil {
		return nil, s.fail(span, err)
	}
	tx, err := s.issue(ctx, id.ServiceID, constants.TokenTypeTxUsers, constants.ServiceTokenTTL, id.claims(constants.TokenTypeTxUsers))
	if err != nil {
		return nil, s.fail(span, err)
	}
	return &models.TokenPair{Primary: serviceAuth, Secondary: tx}, nil
}

// IssueExternalServiceToken issues a tx-external token for an external
// service with the same claim set as IssueInternalServicePair.
func (s *TokenIssuer) IssueExternalServiceToken(ctx context.Context, id ServiceIdentity) (*models.IssuedToken, error) {
	ctx, span := s.tracer.Start(ctx, "TokenIssuer.IssueExternalServiceToken",
		trace.WithAttributes(attribute.String("service.id", id.ServiceID)))
	defer span.End()

	if err := validateServiceIdentity(id); err != nil {
		return nil, s.fail(span, err)
	}
	tok, err := s.issue(ctx, id.ServiceID, constants.TokenTypeTxExternal, constants.ServiceTokenTTL, id.claims(constants.TokenTypeTxExternal))
	if err != nil {
		return nil, s.fail(span, err)
	}
	return tok, nil
}

func validateServiceIdentity(id ServiceIdentity) error {
	if id.ServiceID == "" {
		return errors.NewInvalidArgumentError("service id is required")
	}
	if id.Audience == "" {
		return errors.NewInvalidArgumentError("audience is required")
	}
	return nil
}

// issue signs one token and records metrics and an audit event.
func (s *TokenIssuer) issue(ctx context.Context, subject string, tokenType constants.TokenType, ttl time.Duration, extra models.Claims) (*models.IssuedToken, error) {
	start := time.Now()

	claims := extra.Clone()
	// Token ids are minted per token; a shared jti would let revoking one
	// token revoke its sibling.
	delete(claims, constants.ClaimTokenID)
	claims[constants.ClaimType] = string(tokenType)

	tok, err := s.codec.EncodeToken(subject, s.issuer, ttl, claims)
	if err != nil {
		code := ""
		if cbcErr, ok := errors.AsCBCError(err); ok {
			code = string(cbcErr.Code())
		}
		s.metrics.RecordTokenIssue(string(tokenType), false, time.Since(start), code)
		s.log.Error(ctx, "Failed to issue token", err, logger.String("token_type", string(tokenType)))
		return nil, err
	}
	s.metrics.RecordTokenIssue(string(tokenType), true, time.Since(start), "")

	event := models.NewAuditEvent(models.AuditEventTokenIssued, "success").
		WithSubject(subject).
		WithToken(tok.JTI, tokenType)
	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warn(ctx, "Failed to record audit event", logger.Error(err))
	}

	s.log.Debug(ctx, "Token issued",
		logger.String("token_type", string(tokenType)),
		logger.String("token_id", tok.JTI),
		logger.Duration("ttl", ttl),
	)
	return tok, nil
}

func (s *TokenIssuer) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
