// Command server runs the txauth token service over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	appservice "github.com/turtacn/txauth/internal/application/service"
	"github.com/turtacn/txauth/internal/config"
	domainservice "github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/audit"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/keystore"
	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/internal/infrastructure/persistence"
	"github.com/turtacn/txauth/internal/infrastructure/ratelimit"
	"github.com/turtacn/txauth/internal/infrastructure/revocation"
	grpcserver "github.com/turtacn/txauth/internal/interfaces/grpc"
	httpserver "github.com/turtacn/txauth/internal/interfaces/http"
	"github.com/turtacn/txauth/internal/interfaces/http/handlers"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("txauth server: %v", err)
	}
}

func run(ctx context.Context, configFile string) error {
	// Logger for startup
	startupLogger := monitoring.NewLogger(&config.LogConfig{Level: "info"}, os.Stdout)

	// Load config
	loadOpts := config.LoadOptions{
		ConfigFile: configFile,
		Decrypter:  crypto.NewConfigDecrypter,
	}
	cfg, err := config.LoadConfig(loadOpts, startupLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
	appLogger, levels := monitoring.NewSwitchableLogger(&cfg.Log, os.Stdout)

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, nil, appLogger)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(tracing.Shutdown)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)
	domainMetrics := monitoring.NewMetricsAdapter(metrics)

	// Initialize database, only when a component stores rows in it
	var db *gorm.DB
	if cfg.Audit.Sink == "database" {
		if db, err = persistence.OpenDatabase(ctx, &cfg.Database, appLogger); err != nil {
			return err
		}
	}

	// Signing keys
	var store keystore.KeyStore
	if cfg.Security.Mode() == constants.SigningModeAsymmetric {
		if store, err = keystore.New(cfg, appLogger); err != nil {
			return err
		}
	}
	provider, err := crypto.NewSigningKeyProvider(ctx, &cfg.Security, store, appLogger)
	if err != nil {
		return err
	}
	codec := crypto.NewTokenCodec(provider, cfg.Security.Audience)

	// Revocation and audit
	revocations, err := revocation.New(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	var revocationConsumer *revocation.Consumer
	if cfg.Kafka.RevocationTopic != "" && revocations != nil {
		var publisher *revocation.PropagatingStore
		publisher, revocationConsumer = revocation.NewPropagation(cfg.Kafka, revocations, appLogger)
		defer func() { _ = publisher.Close() }()
		revocations = publisher
	}
	auditSink, err := audit.New(cfg, db, appLogger)
	if err != nil {
		return err
	}
	if closer, ok := auditSink.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	// Rate limiting
	var limiterClient redis.UniversalClient
	if cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis" {
		if limiterClient, err = persistence.NewRedisClient(ctx, &cfg.Redis, appLogger); err != nil {
			return err
		}
		defer func() { _ = limiterClient.Close() }()
	}
	limiter, err := ratelimit.New(&cfg.RateLimit, limiterClient, appLogger)
	if err != nil {
		return err
	}

	// Domain services
	issuer := domainservice.NewTokenIssuer(codec, &cfg.Security, domainMetrics, auditSink, appLogger)
	validatorOpts := domainservice.ValidatorOptions{Metrics: domainMetrics, Audit: auditSink}
	deps := appservice.Dependencies{
		Codec:   codec,
		Issuer:  issuer,
		Metrics: domainMetrics,
		Audit:   auditSink,
	}
	if revocations != nil {
		validatorOpts.Revocation = revocations
		deps.Revocations = revocations
	}
	validator := domainservice.NewAuthorizationValidator(codec, issuer.Issuer(), validatorOpts, appLogger)
	deps.Validator = validator
	tokenApp := appservice.NewTokenAppService(deps, appLogger)

	// HTTP
	router := httpserver.NewRouter(&cfg.Server, httpserver.RouterDeps{
		Tokens:    handlers.NewTokenHandler(tokenApp, appLogger),
		Health:    handlers.NewHealthHandler(readinessChecks(db, revocations), appLogger),
		Validator: validator,
		Metrics:   metrics,
		Gatherer:  registry,
		Tracer:    tracing.Tracer(),
		Limiter:   limiter,
	}, appLogger)

	// gRPC
	chain := grpcserver.NewInterceptorChain(appLogger, validator, grpcserver.DefaultPolicies(),
		grpcserver.MethodPolicy{Mode: domainservice.ModeSingle}).WithRateLimiter(limiter)
	grpcSrv, _ := grpcserver.NewServer(tokenApp, chain, appLogger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress())
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		appLogger.Info(gctx, "gRPC server listening", logger.String("address", cfg.Server.GRPCAddress()))
		return grpcSrv.Serve(lis)
	})
	if revocationConsumer != nil {
		g.Go(func() error { return revocationConsumer.Run(gctx) })
	}
	if configFile != "" {
		// Only the log level is applied live; other changes need a restart.
		watcher, err := config.NewWatcher(loadOpts, appLogger, func(next *config.Config) {
			if levels.Set(constants.ParseLogLevel(next.Log.Level)) {
				appLogger.Info(gctx, "Log level changed", logger.String("level", levels.Level()))
			}
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info(context.Background(), "Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return router.Stop(shutdownCtx)
	})
	return g.Wait()
}

func readinessChecks(db *gorm.DB, revocations revocation.Store) map[string]handlers.Checker {
	checks := map[string]handlers.Checker{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error { return persistence.PingDatabase(ctx, db) }
	}
	if revocations != nil {
		checks["revocation"] = func(ctx context.Context) error {
			_, err := revocations.IsRevoked(ctx, "readiness-probe")
			return err
		}
	}
	return checks
}

func shutdownWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx)
}
