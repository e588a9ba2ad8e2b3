// Package http wires the gin engine of the txauth server.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/internal/infrastructure/ratelimit"
	"github.com/turtacn/txauth/internal/interfaces/http/handlers"
	"github.com/turtacn/txauth/internal/interfaces/http/middleware"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

// RouterDeps are the collaborators the routes are built from.
type RouterDeps struct {
	Tokens    *handlers.TokenHandler
	Health    *handlers.HealthHandler
	Validator *service.AuthorizationValidator
	Metrics   *monitoring.Metrics
	Gatherer  prometheus.Gatherer
	Tracer    trace.Tracer
	// Limiter throttles the unauthenticated token endpoints. May be nil.
	Limiter ratelimit.Limiter
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.ServerConfig
	logger logger.Logger
	server *http.Server
}

// NewRouter 创建路由器并注册全部路由
func NewRouter(cfg *config.ServerConfig, deps RouterDeps, log logger.Logger) *Router {
	// 设置 Gin 模式
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := &Router{engine: gin.New(), config: cfg, logger: log.WithComponent("HTTPRouter")}
	r.setupRoutes(deps)
	r.server = &http.Server{
		Addr:           cfg.HTTPAddress(),
		Handler:        r.engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(deps RouterDeps) {
	// 全局中间件
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Observability(deps.Tracer, deps.Metrics))
	r.engine.Use(middleware.Logging(r.logger))

	// CORS 配置
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins: r.config.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", constants.HeaderAuthorization,
			constants.HeaderRefreshToken, constants.HeaderTxToken, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	// 健康检查路由（不需要认证）
	r.engine.GET("/live", deps.Health.LivenessCheck)
	r.engine.GET("/ready", deps.Health.ReadinessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	r.engine.GET("/.well-known/jwks.json", deps.Tokens.PublicKeys)

	// Pprof 性能分析（仅在非生产环境）
	if r.config.Environment != "production" {
		pprof.Register(r.engine)
	}

	authorize := func(mode service.Mode, role constants.Role) gin.HandlerFunc {
		return middleware.Authorize(deps.Validator, mode, role, r.logger)
	}

	v1 := r.engine.Group("/api/v1")
	{
		tokens := v1.Group("/tokens")
		{
			tokens.POST("", authorize(service.ModeSingle, constants.RoleAdmin), deps.Tokens.IssueTokens)
			tokens.POST("/tx", authorize(service.ModeSingle, constants.RoleAdmin), deps.Tokens.IssueTxToken)
			tokens.POST("/service", authorize(service.ModeSingle, constants.RoleAdmin), deps.Tokens.IssueServiceTokens)
			tokens.POST("/refresh", middleware.RateLimit(deps.Limiter, r.logger), deps.Tokens.RefreshTokens)
			tokens.POST("/introspect", authorize(service.ModeSingle, constants.RoleService), deps.Tokens.IntrospectToken)
			tokens.POST("/revoke", authorize(service.ModeSingle, ""), deps.Tokens.RevokeToken)
		}

		v1.GET("/whoami", authorize(service.ModeSingle, ""), deps.Tokens.WhoAmI)
		v1.GET("/tx/whoami", authorize(service.ModeMulti, ""), deps.Tokens.WhoAmI)
		v1.GET("/service/whoami", authorize(service.ModeInternalService, constants.RoleService), deps.Tokens.WhoAmI)
		v1.GET("/external/whoami", authorize(service.ModeExternalService, constants.RoleService), deps.Tokens.WhoAmI)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             string(constants.ErrCodeNotFound),
			"error_description": "The requested resource was not found",
		})
	})
}

// Handler returns the configured engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Start 启动 HTTP 服务器. It blocks until Stop is called.
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
