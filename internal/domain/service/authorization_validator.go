package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// Mode selects which headers and token types a request must present.
type Mode int

const (
	// ModeSingle accepts one auth token.
	ModeSingle Mode = iota + 1
	// ModeMulti accepts an auth token chained with a tx-users token.
	ModeMulti
	// ModeRefresh accepts one refresh token.
	ModeRefresh
	// ModeInternalService accepts a tx-internal token chained with a tx-users token.
	ModeInternalService
	// ModeExternalService accepts one tx-external token.
	ModeExternalService
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMulti:
		return "multi"
	case ModeRefresh:
		return "refresh"
	case ModeInternalService:
		return "internal_service"
	case ModeExternalService:
		return "external_service"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name as printed by String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeSingle, ModeMulti, ModeRefresh, ModeInternalService, ModeExternalService} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, errors.NewInvalidArgumentError("unknown validation mode %q", s)
}

// State is a step of the validation state machine.
type State string

const (
	StateStart          State = "START"
	StateTokenExtracted State = "TOKEN_EXTRACTED"
	StateUserResolved   State = "USER_RESOLVED"
	StateSignatureValid State = "SIGNATURE_VALID"
	StateTypeValid      State = "TYPE_VALID"
	StateRoleValid      State = "ROLE_VALID"
	StateAuthorized     State = "AUTHORIZED"
	StateRejected       State = "REJECTED"
)

type modeRule struct {
	header      string
	fallback    string
	primaryType constants.TokenType
	// chainType is the expected type of the TX-TOKEN, empty when the mode
	// does not chain.
	chainType constants.TokenType
	// storePrimary places the primary claims into the ClaimsContext.
	storePrimary bool
}

var modeRules = map[Mode]modeRule{
	ModeSingle: {
		header:      constants.HeaderAuthorization,
		primaryType: constants.TokenTypeAuth,
	},
	ModeMulti: {
		header:      constants.HeaderAuthorization,
		primaryType: constants.TokenTypeAuth,
		chainType:   constants.TokenTypeTxUsers,
	},
	ModeRefresh: {
		header:      constants.HeaderRefreshToken,
		fallback:    constants.HeaderAuthorization,
		primaryType: constants.TokenTypeRefresh,
	},
	ModeInternalService: {
		header:      constants.HeaderAuthorization,
		primaryType: constants.TokenTypeTxService,
		chainType:   constants.TokenTypeTxUsers,
	},
	ModeExternalService: {
		header:       constants.HeaderAuthorization,
		primaryType:  constants.TokenTypeTxExternal,
		storePrimary: true,
	},
}

// Headers is the read side of a header collection. http.Header satisfies it.
type Headers interface {
	Get(key string) string
}

// HeaderMap is a Headers backed by a plain map with case-insensitive lookup.
type HeaderMap map[string]string

// Get returns the value for key, ignoring case.
func (h HeaderMap) Get(key string) string {
	if v, ok := h[key]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// ValidationRequest is one call into the validator.
type ValidationRequest struct {
	Mode    Mode
	Headers Headers
	// RequiredRole is the minimum role of the primary token. Empty means any.
	RequiredRole constants.Role
	// Claims receives the validated tx-class claims. May be nil when the
	// caller does not need them.
	Claims *ClaimsContext
}

// ValidatorOptions are the optional collaborators of AuthorizationValidator.
type ValidatorOptions struct {
	Resolver   UserResolver
	Revocation RevocationChecker
	Metrics    Metrics
	Audit      AuditSink
}

// AuthorizationValidator runs the per-request validation state machine.
// It holds no per-request state and is safe for concurrent use.
type AuthorizationValidator struct {
	codec      *crypto.TokenCodec
	issuer     string
	resolver   UserResolver
	revocation RevocationChecker
	metrics    Metrics
	audit      AuditSink
	tracer     trace.Tracer
	log        logger.Logger
}

// NewAuthorizationValidator creates a validator accepting tokens from issuer.
func NewAuthorizationValidator(codec *crypto.TokenCodec, issuer string, opts ValidatorOptions, log logger.Logger) *AuthorizationValidator {
	v := &AuthorizationValidator{
		codec:      codec,
		issuer:     issuer,
		resolver:   opts.Resolver,
		revocation: opts.Revocation,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		tracer:     otel.Tracer(tracerName),
		log:        log.WithComponent("AuthorizationValidator"),
	}
	if v.issuer == "" {
		v.issuer = constants.DefaultIssuer
	}
	if v.resolver == nil {
		v.resolver = ClaimsUserResolver{}
	}
	if v.metrics == nil {
		v.metrics = NoopMetrics()
	}
	if v.audit == nil {
		v.audit = NoopAuditSink()
	}
	return v
}

// Validate authorizes one request. It returns the principal of the primary
// token, or the error that rejected the request. No partial result is
// returned on failure.
func (v *AuthorizationValidator) Validate(ctx context.Context, req ValidationRequest) (*models.Principal, error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "AuthorizationValidator.Validate",
		trace.WithAttributes(attribute.String("auth.mode", req.Mode.String())))
	defer span.End()

	principal, err := v.validate(ctx, req)
	if err != nil {
		v.reject(ctx, req.Mode, err, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	v.transition(ctx, req.Mode, StateAuthorized)
	v.metrics.RecordValidation(req.Mode.String(), true, time.Since(start), "")
	v.record(ctx, models.NewAuditEvent(models.AuditEventAuthorized, "success").
		WithSubject(principal.Subject).
		WithToken(principal.TokenID, principal.TokenType).
		WithMode(req.Mode.String()))
	span.SetAttributes(attribute.String("auth.subject", principal.Subject))
	return principal, nil
}

func (v *AuthorizationValidator) validate(ctx context.Context, req ValidationRequest) (*models.Principal, error) {
	rule, ok := modeRules[req.Mode]
	if !ok {
		return nil, errors.NewInvalidArgumentError("unknown validation mode %d", int(req.Mode))
	}
	if req.Headers == nil {
		req.Headers = HeaderMap{}
	}
	v.transition(ctx, req.Mode, StateStart)

	header := rule.header
	value := req.Headers.Get(header)
	if value == "" && rule.fallback != "" {
		header = rule.fallback
		value = req.Headers.Get(header)
	}

	claims, user, err := v.checkToken(ctx, req.Mode, header, value, rule.primaryType)
	if err != nil {
		return nil, err
	}

	if !claims.Role().Satisfies(req.RequiredRole) {
		return nil, errors.NewAuthorizationError("Invalid User Role").
			WithMetadata("required", string(req.RequiredRole)).
			WithMetadata("actual", string(claims.Role()))
	}
	v.transition(ctx, req.Mode, StateRoleValid)

	principal := models.NewPrincipal(user, claims)

	switch {
	case rule.chainType != "":
		txClaims, _, err := v.checkToken(ctx, req.Mode, constants.HeaderTxToken, req.Headers.Get(constants.HeaderTxToken), rule.chainType)
		if err != nil {
			return nil, err
		}
		if err := v.storeClaims(req.Claims, txClaims); err != nil {
			return nil, err
		}
	case rule.storePrimary:
		if err := v.storeClaims(req.Claims, claims); err != nil {
			return nil, err
		}
	}

	return principal, nil
}

// checkToken runs extraction, subject resolution, identity and type checks
// on one header value.
func (v *AuthorizationValidator) checkToken(ctx context.Context, mode Mode, header, value string, expected constants.TokenType) (models.Claims, *models.User, error) {
	// START -> TOKEN_EXTRACTED
	token, err := extractBearer(header, value)
	if err != nil {
		return nil, nil, err
	}
	v.transition(ctx, mode, StateTokenExtracted)

	// TOKEN_EXTRACTED -> USER_RESOLVED
	claims, err := v.codec.Decode(token, v.issuer, crypto.WithExpiryCheck())
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrExpiredToken):
			return nil, nil, errors.NewTokenExpiredError(err)
		case errors.Is(err, errors.ErrMalformedToken):
			return nil, nil, errors.NewSubjectMissingError(err)
		default:
			return nil, nil, errors.NewUndefinedTokenError(err)
		}
	}
	subject := claims.Subject()
	if subject == "" {
		return nil, nil, errors.NewSubjectMissingError(nil)
	}
	user, err := v.resolver.ResolveUser(ctx, subject, claims)
	if err != nil {
		if errors.IsCBCError(err) {
			return nil, nil, err
		}
		return nil, nil, errors.NewUndefinedTokenError(err)
	}
	v.transition(ctx, mode, StateUserResolved)

	// USER_RESOLVED -> SIGNATURE_VALID
	if err := v.checkIdentity(ctx, user, claims); err != nil {
		return nil, nil, errors.NewAuthorizationError("Token validation failed").WithCause(err)
	}
	v.transition(ctx, mode, StateSignatureValid)

	// SIGNATURE_VALID -> TYPE_VALID
	if actual := claims.Type(); actual != expected {
		return nil, nil, errors.NewInvalidTokenTypeError(expected, actual)
	}
	v.transition(ctx, mode, StateTypeValid)

	return claims, user, nil
}

// checkIdentity confirms the token belongs to user and is still usable.
func (v *AuthorizationValidator) checkIdentity(ctx context.Context, user *models.User, claims models.Claims) error {
	if user == nil || user.Username != claims.Subject() {
		return errors.New("token subject does not match resolved user")
	}
	if !user.Enabled {
		return errors.New("user is disabled")
	}
	if models.TokenFromClaims(claims).IsExpired(v.codec.Now()) {
		return errors.New("token is expired")
	}
	if v.revocation != nil {
		jti := claims.ID()
		if jti == "" {
			return errors.New("token has no jti")
		}
		revoked, err := v.revocation.IsRevoked(ctx, jti)
		if err != nil {
			return err
		}
		if revoked {
			return errors.New("token has been revoked")
		}
	}
	return nil
}

func (v *AuthorizationValidator) storeClaims(cc *ClaimsContext, claims models.Claims) error {
	if cc == nil {
		return nil
	}
	return cc.SetClaims(claims)
}

// extractBearer returns the token after the "Bearer " prefix.
func extractBearer(header, value string) (string, error) {
	if !strings.HasPrefix(value, constants.BearerPrefix) {
		return "", errors.NewTokenExtractionError(header)
	}
	token := strings.TrimSpace(strings.TrimPrefix(value, constants.BearerPrefix))
	if token == "" {
		return "", errors.NewTokenExtractionError(header)
	}
	return token, nil
}

func (v *AuthorizationValidator) transition(ctx context.Context, mode Mode, state State) {
	v.metrics.RecordValidationStep(mode.String(), string(state))
	v.log.Debug(ctx, "Validation state transition",
		logger.String("mode", mode.String()),
		logger.String("state", string(state)),
	)
}

func (v *AuthorizationValidator) reject(ctx context.Context, mode Mode, err error, elapsed time.Duration) {
	code := constants.ErrCodeInternal
	if cbcErr, ok := errors.AsCBCError(err); ok {
		code = cbcErr.Code()
	}
	v.metrics.RecordValidationStep(mode.String(), string(StateRejected))
	v.metrics.RecordValidation(mode.String(), false, elapsed, string(code))
	v.log.Debug(ctx, "Validation state transition",
		logger.String("mode", mode.String()),
		logger.String("state", string(StateRejected)),
		logger.String("code", string(code)),
	)
	v.record(ctx, models.NewAuditEvent(models.AuditEventRejected, "failure").
		WithMode(mode.String()).
		WithFailure(code, err.Error()))
}

func (v *AuthorizationValidator) record(ctx context.Context, event *models.AuditEvent) {
	if err := v.audit.Record(ctx, event); err != nil {
		v.log.Warn(ctx, "Failed to record audit event", logger.Error(err))
	}
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}
