package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/txauth/internal/application/dto"
	appService "github.com/turtacn/txauth/internal/application/service"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/ratelimit"
	"github.com/turtacn/txauth/internal/infrastructure/revocation"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const testIssuer = "txauth-test"

type testServer struct {
	app  appService.TokenAppService
	conn *grpc.ClientConn
}

func startServer(t *testing.T, extra map[string]MethodPolicy) *testServer {
	t.Helper()
	return startServerWith(t, extra, nil)
}

func startServerWith(t *testing.T, extra map[string]MethodPolicy, limiter ratelimit.Limiter) *testServer {
	t.Helper()
	log := logger.NewNopLogger()
	p, err := crypto.NewSymmetricProvider("s3cr3t")
	require.NoError(t, err)
	codec := crypto.NewTokenCodec(p, "txauth-api")
	issuer := service.NewTokenIssuer(codec, &config.SecurityConfig{
		Issuer: testIssuer, AuthTTL: 5 * time.Minute, RefreshTTL: time.Hour,
	}, nil, nil, log)
	store := revocation.NewMemoryStore()
	validator := service.NewAuthorizationValidator(codec, testIssuer, service.ValidatorOptions{Revocation: store}, log)
	app := appService.NewTokenAppService(appService.Dependencies{
		Codec: codec, Issuer: issuer, Validator: validator, Revocations: store,
	}, log)

	policies := DefaultPolicies()
	for k, v := range extra {
		policies[k] = v
	}
	chain := NewInterceptorChain(log, validator, policies, MethodPolicy{Mode: service.ModeSingle}).WithRateLimiter(limiter)
	server, _ := NewServer(app, chain, log)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testServer{app: app, conn: conn}
}

func (s *testServer) issue(t *testing.T, subject, role string) *dto.TokenResponse {
	t.Helper()
	resp, err := s.app.IssueTokens(context.Background(), &dto.IssueTokenRequest{
		Subject: subject,
		Claims:  map[string]interface{}{constants.ClaimRole: role},
	})
	require.NoError(t, err)
	return resp
}

func (s *testServer) call(ctx context.Context, method string, in map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	err = s.conn.Invoke(ctx, method, req, out)
	return out, err
}

func withAuth(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", constants.BearerPrefix+token)
}

func TestWhoAmI(t *testing.T) {
	s := startServer(t, nil)
	tokens := s.issue(t, "alice", "User")

	out, err := s.call(withAuth(tokens.AccessToken), MethodWhoAmI, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.Fields["subject"].GetStringValue())
	assert.Equal(t, "User", out.Fields["role"].GetStringValue())
	assert.Equal(t, "auth", out.Fields["token_type"].GetStringValue())

	_, err = s.call(context.Background(), MethodWhoAmI, nil)
	assert.Equal(t, grpcCodes.Unauthenticated, status.Code(err))

	// A refresh token is not an auth token.
	_, err = s.call(withAuth(tokens.RefreshToken), MethodWhoAmI, nil)
	assert.Equal(t, grpcCodes.Unauthenticated, status.Code(err))
}

func TestIntrospect_RequiresServiceRole(t *testing.T) {
	s := startServer(t, nil)
	user := s.issue(t, "alice", "User")
	svc := s.issue(t, "billing", "Service")

	in := map[string]interface{}{"token": user.AccessToken}
	_, err := s.call(withAuth(user.AccessToken), MethodIntrospect, in)
	assert.Equal(t, grpcCodes.PermissionDenied, status.Code(err))

	out, err := s.call(withAuth(svc.AccessToken), MethodIntrospect, in)
	require.NoError(t, err)
	assert.True(t, out.Fields["active"].GetBoolValue())
	assert.Equal(t, "alice", out.Fields["sub"].GetStringValue())

	out, err = s.call(withAuth(svc.AccessToken), MethodIntrospect, map[string]interface{}{"token": "garbage"})
	require.NoError(t, err)
	assert.False(t, out.Fields["active"].GetBoolValue())

	_, err = s.call(withAuth(svc.AccessToken), MethodIntrospect, map[string]interface{}{})
	assert.Equal(t, grpcCodes.InvalidArgument, status.Code(err))
}

func TestRefresh_RotatesPair(t *testing.T) {
	s := startServer(t, nil)
	tokens := s.issue(t, "alice", "User")

	out, err := s.call(context.Background(), MethodRefresh, map[string]interface{}{"refresh_token": tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Fields["access_token"].GetStringValue())
	assert.NotEmpty(t, out.Fields["refresh_token"].GetStringValue())

	_, err = s.call(context.Background(), MethodRefresh, map[string]interface{}{"refresh_token": tokens.RefreshToken})
	assert.Equal(t, grpcCodes.PermissionDenied, status.Code(err), "a rotated refresh token is revoked")
}

func TestHealthIsPublic(t *testing.T) {
	s := startServer(t, nil)
	resp, err := healthpb.NewHealthClient(s.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestRecoveryInterceptor(t *testing.T) {
	chain := NewInterceptorChain(logger.NewNopLogger(), nil, nil, MethodPolicy{Public: true})
	_, err := chain.UnaryRecoveryInterceptor()(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/x/y"},
		func(context.Context, interface{}) (interface{}, error) { panic("boom") })
	assert.Equal(t, grpcCodes.Internal, status.Code(err))
}

func TestChainedModeReadsTxTokenMetadata(t *testing.T) {
	s := startServer(t, map[string]MethodPolicy{MethodWhoAmI: {Mode: service.ModeMulti}})
	tokens := s.issue(t, "alice", "User")
	tx, err := s.app.IssueTxToken(context.Background(), &dto.TxTokenRequest{Subject: "alice", TokenType: "tx-users"})
	require.NoError(t, err)

	_, err = s.call(withAuth(tokens.AccessToken), MethodWhoAmI, nil)
	assert.Equal(t, grpcCodes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(withAuth(tokens.AccessToken), "tx-token", constants.BearerPrefix+tx.AccessToken)
	out, err := s.call(ctx, MethodWhoAmI, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.Fields["subject"].GetStringValue())
}

func TestRefresh_RateLimited(t *testing.T) {
	s := startServerWith(t, nil, ratelimit.NewMemoryLimiter(1, 0.001))
	in := map[string]interface{}{"refresh_token": "x"}

	_, err := s.call(context.Background(), MethodRefresh, in)
	assert.Equal(t, grpcCodes.Unauthenticated, status.Code(err))
	_, err = s.call(context.Background(), MethodRefresh, in)
	assert.Equal(t, grpcCodes.ResourceExhausted, status.Code(err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want grpcCodes.Code
	}{
		{errors.NewTokenExtractionError(constants.HeaderAuthorization), grpcCodes.Unauthenticated},
		{errors.NewAuthorizationError("role"), grpcCodes.PermissionDenied},
		{errors.NewInvalidArgumentError("bad"), grpcCodes.InvalidArgument},
		{errors.NewNotFoundError("key"), grpcCodes.NotFound},
		{errors.NewClaimsNotInitializedError(), grpcCodes.Internal},
		{errors.New("plain"), grpcCodes.Internal},
		{status.Error(grpcCodes.Aborted, "x"), grpcCodes.Aborted},
		{errors.NewRateLimitedError(time.Second), grpcCodes.ResourceExhausted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(ToStatus(tt.err)), "%v", tt.err)
	}
	assert.NoError(t, ToStatus(nil))

	st, _ := status.FromError(ToStatus(errors.NewAuthorizationError("role")))
	assert.Contains(t, st.Message(), string(constants.ErrCodeAuthorization))
}
