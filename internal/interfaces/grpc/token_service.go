package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/txauth/internal/application/dto"
	appService "github.com/turtacn/txauth/internal/application/service"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// Full method names of the token service.
const (
	ServiceName      = "txauth.v1.TokenService"
	MethodIntrospect = "/" + ServiceName + "/Introspect"
	MethodRefresh    = "/" + ServiceName + "/Refresh"
	MethodWhoAmI     = "/" + ServiceName + "/WhoAmI"
)

// TokenServiceServer is the server API of txauth.v1.TokenService. Messages
// are google.protobuf.Struct values carrying the JSON form of the DTOs.
type TokenServiceServer interface {
	Introspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(TokenServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TokenServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TokenServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// TokenServiceDesc describes txauth.v1.TokenService.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Introspect", TokenServiceServer.Introspect),
		unaryHandler("Refresh", TokenServiceServer.Refresh),
		unaryHandler("WhoAmI", TokenServiceServer.WhoAmI),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "txauth/v1/token_service.proto",
}

// TokenGRPCService implements TokenServiceServer on top of TokenAppService.
type TokenGRPCService struct {
	app appService.TokenAppService
	log logger.Logger
}

func NewTokenGRPCService(app appService.TokenAppService, log logger.Logger) *TokenGRPCService {
	return &TokenGRPCService{app: app, log: log.WithComponent("TokenGRPCService")}
}

// DefaultPolicies protects Introspect for services, leaves Refresh public
// (the refresh token is validated by the handler) and requires an auth
// token for WhoAmI.
func DefaultPolicies() map[string]MethodPolicy {
	return map[string]MethodPolicy{
		MethodIntrospect: {Mode: service.ModeSingle, Role: constants.RoleService},
		MethodRefresh:    {Public: true},
		MethodWhoAmI:     {Mode: service.ModeSingle},
		healthpb.Health_Check_FullMethodName: {Public: true},
		healthpb.Health_List_FullMethodName:  {Public: true},
	}
}

// NewServer creates a gRPC server with the token and health services
// registered behind the interceptor chain.
func NewServer(app appService.TokenAppService, chain *InterceptorChain, log logger.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(chain.Unary()...))
	server := grpc.NewServer(opts...)
	server.RegisterService(&TokenServiceDesc, NewTokenGRPCService(app, log))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

func (s *TokenGRPCService) Introspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.IntrospectTokenRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, ToStatus(err)
	}
	resp, err := s.app.IntrospectToken(ctx, &in)
	if err != nil {
		return nil, ToStatus(err)
	}
	return toStruct(resp)
}

func (s *TokenGRPCService) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.RefreshTokenRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, ToStatus(err)
	}
	resp, err := s.app.RefreshTokens(ctx, &in)
	if err != nil {
		return nil, ToStatus(err)
	}
	return toStruct(resp)
}

func (s *TokenGRPCService) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, ok := service.PrincipalFrom(ctx)
	if !ok {
		return nil, ToStatus(errors.NewClaimsNotInitializedError())
	}
	return structpb.NewStruct(map[string]interface{}{
		"subject":    p.Subject,
		"role":       string(p.Role),
		"token_type": string(p.TokenType),
		"jti":        p.TokenID,
	})
}

func fromStruct(in *structpb.Struct, out interface{}) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return errors.NewInvalidArgumentError("invalid request message")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewInvalidArgumentError("invalid request message")
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ToStatus(err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, ToStatus(err)
	}
	return out, nil
}
