// Package grpc exposes the token service over gRPC and guards it with the
// same validation pipeline as the HTTP server.
package grpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/ratelimit"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// MethodPolicy says how calls to one full method name are authorized.
type MethodPolicy struct {
	Public bool
	Mode   service.Mode
	Role   constants.Role
}

// InterceptorChain 拦截器链
type InterceptorChain struct {
	log       logger.Logger
	validator *service.AuthorizationValidator
	policies  map[string]MethodPolicy
	fallback  MethodPolicy
	limiter   ratelimit.Limiter
}

// NewInterceptorChain 创建拦截器链. Methods without a policy use fallback.
func NewInterceptorChain(log logger.Logger, validator *service.AuthorizationValidator, policies map[string]MethodPolicy, fallback MethodPolicy) *InterceptorChain {
	return &InterceptorChain{
		log:       log.WithComponent("GRPCInterceptor"),
		validator: validator,
		policies:  policies,
		fallback:  fallback,
	}
}

// WithRateLimiter throttles public methods per peer address.
func (ic *InterceptorChain) WithRateLimiter(l ratelimit.Limiter) *InterceptorChain {
	ic.limiter = l
	return ic
}

// Unary returns the interceptors in the order they should run.
func (ic *InterceptorChain) Unary() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		ic.UnaryRecoveryInterceptor(),
		ic.UnaryLoggingInterceptor(),
		ic.UnaryAuthInterceptor(),
	}
}

// UnaryRecoveryInterceptor 恢复拦截器(捕获 panic)
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor 日志拦截器
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := time.Now()
		resp, err := handler(ctx, req)

		ic.log.Info(ctx, "gRPC request completed",
			logger.String("method", info.FullMethod),
			logger.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			logger.String("status", status.Code(err).String()),
		)
		return resp, err
	}
}

// UnaryAuthInterceptor 认证拦截器. Metadata keys play the role of HTTP
// headers: authorization, refresh-token and tx-token.
func (ic *InterceptorChain) UnaryAuthInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		policy, ok := ic.policies[info.FullMethod]
		if !ok {
			policy = ic.fallback
		}
		if policy.Public {
			if err := ic.throttle(ctx, info.FullMethod); err != nil {
				return nil, err
			}
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		cc := service.NewClaimsContext()
		principal, err := ic.validator.Validate(ctx, service.ValidationRequest{
			Mode:         policy.Mode,
			Headers:      metadataHeaders(md),
			RequiredRole: policy.Role,
			Claims:       cc,
		})
		if err != nil {
			ic.log.Debug(ctx, "gRPC request rejected",
				logger.String("method", info.FullMethod),
				logger.Error(err),
			)
			return nil, ToStatus(err)
		}

		ctx = service.WithPrincipal(ctx, principal)
		ctx = service.WithClaimsContext(ctx, cc)
		return handler(ctx, req)
	}
}

func (ic *InterceptorChain) throttle(ctx context.Context, method string) error {
	if ic.limiter == nil {
		return nil
	}
	addr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
	}
	res, err := ic.limiter.Allow(ctx, method+"|"+addr)
	if err != nil {
		ic.log.Warn(ctx, "Rate limiter unavailable, allowing request", logger.Error(err))
		return nil
	}
	if !res.Allowed {
		return ToStatus(errors.NewRateLimitedError(res.RetryAfter))
	}
	return nil
}

// metadataHeaders adapts incoming metadata to service.Headers.
type metadataHeaders metadata.MD

func (m metadataHeaders) Get(key string) string {
	if v := metadata.MD(m).Get(strings.ToLower(key)); len(v) > 0 {
		return v[0]
	}
	return ""
}

// ToStatus converts an error into a gRPC status error, keeping the error
// code as the status message prefix.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	cbcErr, ok := errors.AsCBCError(err)
	if !ok {
		return status.Error(grpcCodes.Internal, "internal error")
	}

	code := grpcCodes.Internal
	switch cbcErr.HTTPStatus() {
	case http.StatusUnauthorized:
		code = grpcCodes.Unauthenticated
	case http.StatusForbidden:
		code = grpcCodes.PermissionDenied
	case http.StatusBadRequest:
		code = grpcCodes.InvalidArgument
	case http.StatusNotFound:
		code = grpcCodes.NotFound
	case http.StatusNotImplemented:
		code = grpcCodes.Unimplemented
	case http.StatusTooManyRequests:
		code = grpcCodes.ResourceExhausted
	}
	return status.Errorf(code, "%s: %s", cbcErr.Code(), cbcErr.Error())
}
