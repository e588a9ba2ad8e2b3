package service_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/domain/service/mocks"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

type validatorFixture struct {
	clk       *clock
	codec     *crypto.TokenCodec
	validator *service.AuthorizationValidator
}

func newValidatorFixture(t *testing.T, opts service.ValidatorOptions) *validatorFixture {
	t.Helper()
	clk := &clock{now: baseTime}
	codec := newCodec(t, clk)
	return &validatorFixture{
		clk:       clk,
		codec:     codec,
		validator: service.NewAuthorizationValidator(codec, testIssuer, opts, logger.NewNopLogger()),
	}
}

func (f *validatorFixture) token(t *testing.T, typ constants.TokenType, role constants.Role) string {
	return signed(t, f.codec, "alice", typ, role, 5*time.Minute)
}

var allTypes = []constants.TokenType{
	constants.TokenTypeAuth,
	constants.TokenTypeRefresh,
	constants.TokenTypeTxUsers,
	constants.TokenTypeTxService,
	constants.TokenTypeTxExternal,
}

func TestValidate_ModeTypeMatrix(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})

	modes := []struct {
		mode    service.Mode
		header  string
		primary constants.TokenType
		chained bool
	}{
		{service.ModeSingle, constants.HeaderAuthorization, constants.TokenTypeAuth, false},
		{service.ModeMulti, constants.HeaderAuthorization, constants.TokenTypeAuth, true},
		{service.ModeRefresh, constants.HeaderRefreshToken, constants.TokenTypeRefresh, false},
		{service.ModeInternalService, constants.HeaderAuthorization, constants.TokenTypeTxService, true},
		{service.ModeExternalService, constants.HeaderAuthorization, constants.TokenTypeTxExternal, false},
	}

	for _, m := range modes {
		for _, typ := range allTypes {
			t.Run(m.mode.String()+"/"+string(typ), func(t *testing.T) {
				headers := service.HeaderMap{m.header: bearer(f.token(t, typ, constants.RoleService))}
				if m.chained {
					headers[constants.HeaderTxToken] = bearer(f.token(t, constants.TokenTypeTxUsers, constants.RoleUser))
				}

				p, err := f.validator.Validate(context.Background(), service.ValidationRequest{
					Mode:    m.mode,
					Headers: headers,
					Claims:  service.NewClaimsContext(),
				})
				if typ == m.primary {
					require.NoError(t, err)
					assert.Equal(t, "alice", p.Subject)
					assert.Equal(t, typ, p.TokenType)
					return
				}
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidTokenType), "got %v", err)
				assert.Contains(t, err.Error(), string(typ))
				assert.Contains(t, err.Error(), string(m.primary))
				assert.Nil(t, p)
			})
		}
	}
}

func TestValidate_ChainedTxTokenType(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})

	for _, mode := range []service.Mode{service.ModeMulti, service.ModeInternalService} {
		primary := constants.TokenTypeAuth
		if mode == service.ModeInternalService {
			primary = constants.TokenTypeTxService
		}
		for _, typ := range allTypes {
			t.Run(mode.String()+"/"+string(typ), func(t *testing.T) {
				cc := service.NewClaimsContext()
				_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
					Mode: mode,
					Headers: service.HeaderMap{
						constants.HeaderAuthorization: bearer(f.token(t, primary, constants.RoleService)),
						constants.HeaderTxToken:       bearer(f.token(t, typ, constants.RoleUser)),
					},
					Claims: cc,
				})
				if typ == constants.TokenTypeTxUsers {
					require.NoError(t, err)
					got, err := cc.TokenType()
					require.NoError(t, err)
					assert.Equal(t, constants.TokenTypeTxUsers, got)
					return
				}
				assert.True(t, errors.Is(err, errors.ErrInvalidTokenType), "got %v", err)
				assert.False(t, cc.IsInitialized(), "no claims are stored on rejection")
			})
		}
	}
}

func TestValidate_ChainedTxTokenMissing(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeMulti,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(f.token(t, constants.TokenTypeAuth, ""))},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTokenExtraction))
	assert.Contains(t, err.Error(), constants.HeaderTxToken)
}

func TestValidate_Extraction(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	tok := f.token(t, constants.TokenTypeAuth, "")

	for name, value := range map[string]string{
		"missing":      "",
		"no prefix":    tok,
		"basic scheme": "Basic dXNlcjpwYXNz",
		"lower bearer": "bearer " + tok,
		"empty bearer": "Bearer ",
		"blank bearer": "Bearer    ",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
				Mode:    service.ModeSingle,
				Headers: service.HeaderMap{constants.HeaderAuthorization: value},
			})
			assert.True(t, errors.Is(err, errors.ErrTokenExtraction), "got %v", err)
		})
	}
}

func TestValidate_SubjectResolutionFailures(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})

	expired := f.token(t, constants.TokenTypeAuth, "")
	noSubject := signed(t, f.codec, "", constants.TokenTypeAuth, "", time.Minute)
	foreign, err := f.codec.Encode("alice", "someone-else", time.Minute, models.Claims{constants.ClaimType: "auth"})
	require.NoError(t, err)
	good := f.token(t, constants.TokenTypeAuth, "")
	tampered := good[:len(good)-4] + "AAAA"
	if tampered == good {
		tampered = good[:len(good)-4] + "BBBB"
	}

	tests := []struct {
		name  string
		token string
		clock time.Time
		want  errors.CBCError
	}{
		{"expired", expired, baseTime.Add(5 * time.Minute), errors.ErrTokenExpired},
		{"malformed", "not-a-token", baseTime, errors.ErrSubjectMissing},
		{"empty subject", noSubject, baseTime, errors.ErrSubjectMissing},
		{"bad signature", tampered, baseTime, errors.ErrUndefinedToken},
		{"wrong issuer", foreign, baseTime, errors.ErrUndefinedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clk.now = tt.clock
			defer func() { f.clk.now = baseTime }()

			_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
				Mode:    service.ModeSingle,
				Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tt.token)},
			})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidate_ZeroTTLIsRejected(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	tok := signed(t, f.codec, "alice", constants.TokenTypeAuth, "", 0)
	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeSingle,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tok)},
	})
	assert.True(t, errors.Is(err, errors.ErrTokenExpired))
}

func TestValidate_RoleGate(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})

	tests := []struct {
		role     constants.Role
		required constants.Role
		allowed  bool
	}{
		{constants.RoleUser, "", true},
		{constants.RoleUser, constants.RoleUser, true},
		{constants.RoleUser, constants.RoleAdmin, false},
		{constants.RoleService, constants.RoleAdmin, false},
		{constants.RoleService, constants.RoleUser, true},
		{constants.RoleAdmin, constants.RoleUser, true},
		{constants.RoleAdmin, constants.RoleAdmin, true},
		{"Guest", constants.RoleUser, false},
		{constants.RoleAdmin, "Auditor", false},
		{"Auditor", "Auditor", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"->"+string(tt.required), func(t *testing.T) {
			p, err := f.validator.Validate(context.Background(), service.ValidationRequest{
				Mode:         service.ModeSingle,
				Headers:      service.HeaderMap{constants.HeaderAuthorization: bearer(f.token(t, constants.TokenTypeAuth, tt.role))},
				RequiredRole: tt.required,
			})
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.role, p.Role)
				assert.True(t, p.HasAuthority(tt.role.Authority()))
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrAuthorization))
			assert.Contains(t, err.Error(), "Invalid User Role")
		})
	}
}

func TestValidate_RefreshHeaderFallback(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	tok := f.token(t, constants.TokenTypeRefresh, "")

	for _, header := range []string{constants.HeaderRefreshToken, constants.HeaderAuthorization} {
		p, err := f.validator.Validate(context.Background(), service.ValidationRequest{
			Mode:    service.ModeRefresh,
			Headers: service.HeaderMap{header: bearer(tok)},
		})
		require.NoError(t, err, header)
		assert.Equal(t, constants.TokenTypeRefresh, p.TokenType)
	}
}

func TestValidate_HTTPHeaders(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	h := http.Header{}
	h.Set(constants.HeaderAuthorization, bearer(f.token(t, constants.TokenTypeAuth, "")))
	h.Set(constants.HeaderTxToken, bearer(f.token(t, constants.TokenTypeTxUsers, "")))

	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.ModeMulti, Headers: h})
	assert.NoError(t, err)
}

func TestValidate_ExternalServiceStoresClaims(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	issuer := newIssuer(f.codec, 5*time.Minute, time.Hour)
	tok, err := issuer.IssueExternalServiceToken(context.Background(), service.ServiceIdentity{
		ServiceID: "ext-7", ServiceName: "partner", Owner: "acme", Audience: "public",
	})
	require.NoError(t, err)

	cc := service.NewClaimsContext()
	p, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeExternalService,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tok.Value)},
		Claims:  cc,
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-7", p.Subject)

	owner, err := cc.String(constants.ClaimOwner)
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
}

func TestValidate_InternalServiceScenario(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	issuer := newIssuer(f.codec, 5*time.Minute, time.Hour)
	pair, err := issuer.IssueInternalServicePair(context.Background(), service.ServiceIdentity{
		ServiceID: "svc-42", ServiceName: "billing", Owner: "team-x", Audience: "internal",
	})
	require.NoError(t, err)

	cc := service.NewClaimsContext()
	p, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode: service.ModeInternalService,
		Headers: service.HeaderMap{
			constants.HeaderAuthorization: bearer(pair.Primary.Value),
			constants.HeaderTxToken:       bearer(pair.Secondary.Value),
		},
		RequiredRole: constants.RoleService,
		Claims:       cc,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.RoleService, p.Role)
	assert.Equal(t, []string{"ROLE_SERVICE"}, p.Authorities)

	sub, err := cc.Subject()
	require.NoError(t, err)
	assert.Equal(t, "svc-42", sub)
}

func TestValidate_ClaimsContextAlreadySet(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	cc := service.NewClaimsContext()
	require.NoError(t, cc.SetClaims(models.Claims{constants.ClaimSubject: "earlier"}))

	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode: service.ModeMulti,
		Headers: service.HeaderMap{
			constants.HeaderAuthorization: bearer(f.token(t, constants.TokenTypeAuth, "")),
			constants.HeaderTxToken:       bearer(f.token(t, constants.TokenTypeTxUsers, "")),
		},
		Claims: cc,
	})
	assert.Error(t, err)
}

func TestValidate_Revocation(t *testing.T) {
	revocation := &mocks.MockRevocationChecker{}
	f := newValidatorFixture(t, service.ValidatorOptions{Revocation: revocation})

	tok, err := f.codec.EncodeToken("alice", testIssuer, time.Minute, models.Claims{constants.ClaimType: "auth"})
	require.NoError(t, err)

	revocation.On("IsRevoked", mock.Anything, tok.JTI).Return(true, nil).Once()
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeSingle,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tok.Value)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuthorization))
	assert.Contains(t, err.Error(), "Token validation failed")

	revocation.On("IsRevoked", mock.Anything, tok.JTI).Return(false, errors.New("redis down")).Once()
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeSingle,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tok.Value)},
	})
	assert.True(t, errors.Is(err, errors.ErrAuthorization), "revocation lookup failures fail closed")

	revocation.On("IsRevoked", mock.Anything, tok.JTI).Return(false, nil).Once()
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeSingle,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(tok.Value)},
	})
	assert.NoError(t, err)
	revocation.AssertExpectations(t)
}

func TestValidate_UserResolver(t *testing.T) {
	resolver := &mocks.MockUserResolver{}
	f := newValidatorFixture(t, service.ValidatorOptions{Resolver: resolver})
	headers := service.HeaderMap{constants.HeaderAuthorization: bearer(f.token(t, constants.TokenTypeAuth, ""))}

	resolver.On("ResolveUser", mock.Anything, "alice", mock.Anything).
		Return(&models.User{Username: "bob", Role: constants.RoleUser, Enabled: true}, nil).Once()
	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.ModeSingle, Headers: headers})
	assert.True(t, errors.Is(err, errors.ErrAuthorization), "subject/user mismatch")

	resolver.On("ResolveUser", mock.Anything, "alice", mock.Anything).
		Return(&models.User{Username: "alice", Enabled: false}, nil).Once()
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.ModeSingle, Headers: headers})
	assert.True(t, errors.Is(err, errors.ErrAuthorization), "disabled user")

	resolver.On("ResolveUser", mock.Anything, "alice", mock.Anything).
		Return(nil, errors.New("directory unavailable")).Once()
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.ModeSingle, Headers: headers})
	assert.True(t, errors.Is(err, errors.ErrUndefinedToken))

	resolver.AssertExpectations(t)
}

func TestValidate_MetricsAndAudit(t *testing.T) {
	metrics := &mocks.MockMetrics{}
	audit := &mocks.MockAuditSink{}
	metrics.On("RecordValidationStep", "single", mock.Anything)
	metrics.On("RecordValidation", "single", true, mock.Anything, "").Once()
	metrics.On("RecordValidation", "single", false, mock.Anything, "token_extraction_error").Once()
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e *models.AuditEvent) bool {
		return e.EventType == models.AuditEventAuthorized && e.Subject == "alice"
	})).Return(nil).Once()
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e *models.AuditEvent) bool {
		return e.EventType == models.AuditEventRejected && e.Code == constants.ErrCodeTokenExtraction
	})).Return(nil).Once()

	f := newValidatorFixture(t, service.ValidatorOptions{Metrics: metrics, Audit: audit})

	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{
		Mode:    service.ModeSingle,
		Headers: service.HeaderMap{constants.HeaderAuthorization: bearer(f.token(t, constants.TokenTypeAuth, ""))},
	})
	require.NoError(t, err)
	_, err = f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.ModeSingle})
	require.Error(t, err)

	metrics.AssertExpectations(t)
	audit.AssertExpectations(t)
	for _, state := range []service.State{service.StateStart, service.StateTokenExtracted, service.StateUserResolved,
		service.StateSignatureValid, service.StateTypeValid, service.StateRoleValid, service.StateAuthorized, service.StateRejected} {
		metrics.AssertCalled(t, "RecordValidationStep", "single", string(state))
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	f := newValidatorFixture(t, service.ValidatorOptions{})
	_, err := f.validator.Validate(context.Background(), service.ValidationRequest{Mode: service.Mode(99)})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	m, err := service.ParseMode("internal_service")
	require.NoError(t, err)
	assert.Equal(t, service.ModeInternalService, m)
	_, err = service.ParseMode("bogus")
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := service.PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := &models.Principal{Subject: "alice"}
	got, ok := service.PrincipalFrom(service.WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Same(t, p, got)
}
