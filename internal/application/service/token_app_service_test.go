package service

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/txauth/internal/application/dto"
	"github.com/turtacn/txauth/internal/config"
	domainService "github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/domain/service/mocks"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/keystore"
	"github.com/turtacn/txauth/internal/infrastructure/revocation"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const testIssuer = "txauth-test"

type fixture struct {
	svc     TokenAppService
	codec   *crypto.TokenCodec
	store   *revocation.MemoryStore
	metrics *mocks.MockMetrics
	audit   *mocks.MockAuditSink
}

func newFixture(t *testing.T, provider crypto.SigningKeyProvider, withStore bool) *fixture {
	t.Helper()
	if provider == nil {
		var err error
		provider, err = crypto.NewSymmetricProvider("s3cr3t")
		require.NoError(t, err)
	}
	log := logger.NewNopLogger()
	codec := crypto.NewTokenCodec(provider, "txauth-api")
	issuer := domainService.NewTokenIssuer(codec, &config.SecurityConfig{
		Issuer: testIssuer, AuthTTL: 5 * time.Minute, RefreshTTL: time.Hour,
	}, nil, nil, log)

	f := &fixture{codec: codec, metrics: &mocks.MockMetrics{}, audit: &mocks.MockAuditSink{}}
	f.metrics.On("RecordTokenRevoke", mock.Anything).Maybe()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Maybe()

	deps := Dependencies{Codec: codec, Issuer: issuer, Metrics: f.metrics, Audit: f.audit}
	opts := domainService.ValidatorOptions{}
	if withStore {
		f.store = revocation.NewMemoryStore()
		deps.Revocations = f.store
		opts.Revocation = f.store
	}
	deps.Validator = domainService.NewAuthorizationValidator(codec, testIssuer, opts, log)
	f.svc = NewTokenAppService(deps, log)
	return f
}

func TestIssueTokens(t *testing.T) {
	f := newFixture(t, nil, true)
	resp, err := f.svc.IssueTokens(context.Background(), &dto.IssueTokenRequest{
		Subject: "alice",
		Claims:  map[string]interface{}{constants.ClaimRole: "Admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(300), resp.ExpiresIn)
	assert.Equal(t, int64(3600), resp.RefreshExpiresIn)

	claims, err := f.codec.Decode(resp.AccessToken, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleAdmin, claims.Role())

	_, err = f.svc.IssueTokens(context.Background(), &dto.IssueTokenRequest{})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestIssueTxToken(t *testing.T) {
	f := newFixture(t, nil, true)
	resp, err := f.svc.IssueTxToken(context.Background(), &dto.TxTokenRequest{Subject: "alice", TokenType: "tx-users"})
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)

	claims, err := f.codec.Decode(resp.AccessToken, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, constants.TokenTypeTxUsers, claims.Type())

	_, err = f.svc.IssueTxToken(context.Background(), &dto.TxTokenRequest{Subject: "alice", TokenType: "auth"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestIssueServiceTokens(t *testing.T) {
	f := newFixture(t, nil, true)

	internal, err := f.svc.IssueServiceTokens(context.Background(), &dto.ServiceTokenRequest{
		ServiceID: "svc-42", ServiceName: "billing", Owner: "team-x", Audience: "internal",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, internal.RefreshToken, "internal services get a chained tx-users token")
	assert.Equal(t, int64(24*3600), internal.ExpiresIn)

	external, err := f.svc.IssueServiceTokens(context.Background(), &dto.ServiceTokenRequest{
		ServiceID: "ext-7", Audience: "public", External: true,
	})
	require.NoError(t, err)
	assert.Empty(t, external.RefreshToken)
	claims, err := f.codec.Decode(external.AccessToken, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, constants.TokenTypeTxExternal, claims.Type())

	_, err = f.svc.IssueServiceTokens(context.Background(), &dto.ServiceTokenRequest{ServiceID: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestRefreshTokens_RotatesRefreshToken(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()

	first, err := f.svc.IssueTokens(ctx, &dto.IssueTokenRequest{
		Subject: "alice",
		Claims:  map[string]interface{}{constants.ClaimRole: "Service", "tenant": "acme"},
	})
	require.NoError(t, err)

	second, err := f.svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims, err := f.codec.Decode(second.AccessToken, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject())
	assert.Equal(t, constants.RoleService, claims.Role())
	assert.Equal(t, "acme", claims.String("tenant"))
	assert.Equal(t, constants.TokenTypeAuth, claims.Type())

	// Reuse of the rotated refresh token is rejected.
	_, err = f.svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assert.True(t, errors.Is(err, errors.ErrAuthorization))

	// An auth token is not a refresh token.
	_, err = f.svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: second.AccessToken})
	assert.True(t, errors.Is(err, errors.ErrInvalidTokenType))

	f.metrics.AssertCalled(t, "RecordTokenRevoke", "rotated")
}

// slowStore widens the gap between the revocation check and the rotation.
type slowStore struct {
	*revocation.MemoryStore
}

func (s slowStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	time.Sleep(5 * time.Millisecond)
	return s.MemoryStore.IsRevoked(ctx, jti)
}

func TestRefreshTokens_ConcurrentReuse(t *testing.T) {
	f := newFixture(t, nil, false)
	store := slowStore{revocation.NewMemoryStore()}
	log := logger.NewNopLogger()
	issuer := domainService.NewTokenIssuer(f.codec, &config.SecurityConfig{
		Issuer: testIssuer, AuthTTL: 5 * time.Minute, RefreshTTL: time.Hour,
	}, nil, nil, log)
	svc := NewTokenAppService(Dependencies{
		Codec:       f.codec,
		Issuer:      issuer,
		Validator:   domainService.NewAuthorizationValidator(f.codec, testIssuer, domainService.ValidatorOptions{Revocation: store}, log),
		Revocations: store,
	}, log)

	ctx := context.Background()
	first, err := svc.IssueTokens(ctx, &dto.IssueTokenRequest{Subject: "alice"})
	require.NoError(t, err)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rotated  int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rotated++
				return
			}
			if errors.Is(err, errors.ErrAuthorization) {
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rotated, "a refresh token rotates at most once")
	assert.Equal(t, callers-1, rejected)
}

func TestRefreshTokens_WithoutStore(t *testing.T) {
	f := newFixture(t, nil, false)
	first, err := f.svc.IssueTokens(context.Background(), &dto.IssueTokenRequest{Subject: "alice"})
	require.NoError(t, err)

	_, err = f.svc.RefreshTokens(context.Background(), &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	_, err = f.svc.RefreshTokens(context.Background(), &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assert.NoError(t, err, "without a store the refresh token stays valid until expiry")
}

func TestRevokeAndIntrospect(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()

	pair, err := f.svc.IssueTokens(ctx, &dto.IssueTokenRequest{Subject: "alice"})
	require.NoError(t, err)

	info, err := f.svc.IntrospectToken(ctx, &dto.IntrospectTokenRequest{Token: pair.AccessToken})
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, "alice", info.Sub)
	assert.Equal(t, testIssuer, info.Iss)
	assert.Equal(t, "auth", info.TokenType)
	assert.Equal(t, "User", info.Role)

	revoked, err := f.svc.RevokeToken(ctx, &dto.RevokeTokenRequest{Token: pair.AccessToken, Reason: "logout"})
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	assert.Equal(t, info.Jti, revoked.JTI)
	f.metrics.AssertCalled(t, "RecordTokenRevoke", "logout")

	info, err = f.svc.IntrospectToken(ctx, &dto.IntrospectTokenRequest{Token: pair.AccessToken})
	require.NoError(t, err)
	assert.False(t, info.Active)

	info, err = f.svc.IntrospectToken(ctx, &dto.IntrospectTokenRequest{Token: "garbage"})
	require.NoError(t, err)
	assert.False(t, info.Active)

	_, err = f.svc.RevokeToken(ctx, &dto.RevokeTokenRequest{Token: "a.b.c"})
	assert.Error(t, err)
}

func TestRevokeToken_Disabled(t *testing.T) {
	f := newFixture(t, nil, false)
	pair, err := f.svc.IssueTokens(context.Background(), &dto.IssueTokenRequest{Subject: "alice"})
	require.NoError(t, err)

	_, err = f.svc.RevokeToken(context.Background(), &dto.RevokeTokenRequest{Token: pair.AccessToken})
	assert.True(t, errors.HasCode(err, constants.ErrCodeInternal))
	assert.Equal(t, 501, errors.HTTPStatusOf(err))
}

func TestPublicKeys(t *testing.T) {
	f := newFixture(t, nil, false)
	assert.Empty(t, f.svc.PublicKeys(context.Background()).Keys)

	store := keystore.NewFileStore(t.TempDir(), logger.NewNopLogger())
	provider, err := crypto.LoadOrGenerateRSAProvider(context.Background(), store, crypto.AsymmetricOptions{
		PublicKeyPath: "pub.pem", PrivateKeyPath: "priv.pem", Random: rand.Reader,
	}, logger.NewNopLogger())
	require.NoError(t, err)

	f = newFixture(t, provider, false)
	keys := f.svc.PublicKeys(context.Background()).Keys
	require.Len(t, keys, 1)
	assert.Equal(t, "RSA", keys[0].Kty)
	assert.Equal(t, "RS256", keys[0].Alg)
	assert.Equal(t, provider.KeyID(), keys[0].Kid)
	assert.Equal(t, "AQAB", keys[0].E)
}
