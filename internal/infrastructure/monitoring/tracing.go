// Package monitoring 提供分布式追踪的实现
package monitoring

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// TracingManager 管理 OpenTelemetry 追踪
type TracingManager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	logger   logger.Logger
}

// NewTracingManager 创建追踪管理器. Spans are written as JSON to out
// (stdout when nil).
func NewTracingManager(cfg *config.TracingConfig, out io.Writer, log logger.Logger) (*TracingManager, error) {
	if !cfg.Enabled {
		log.Info(context.Background(), "Tracing is disabled")
		return &TracingManager{
			tracer: otel.Tracer(cfg.ServiceName),
			logger: log,
		}, nil
	}
	if out == nil {
		out = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to create trace exporter")
	}
	return newTracingManager(cfg, sdktrace.WithBatcher(exporter), log)
}

func newTracingManager(cfg *config.TracingConfig, processor sdktrace.TracerProviderOption, log logger.Logger) (*TracingManager, error) {
	// 创建资源
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("environment", cfg.Environment),
	))
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to create trace resource")
	}

	provider := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)

	// 设置全局 TracerProvider 和 Propagator
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(context.Background(), "Tracing initialized",
		logger.String("service", cfg.ServiceName),
		logger.F("sample_rate", cfg.SamplingRate),
	)

	return &TracingManager{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
		logger:   log,
	}, nil
}

// Tracer returns the tracer of the managed provider.
func (tm *TracingManager) Tracer() trace.Tracer {
	return tm.tracer
}

// TraceID 获取当前 Trace ID
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// InjectTraceContext 注入追踪上下文到 Carrier
func InjectTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractTraceContext 从 Carrier 提取追踪上下文
func ExtractTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Shutdown 关闭追踪管理器
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}

	if err := tm.provider.Shutdown(ctx); err != nil {
		tm.logger.Error(ctx, "Failed to shutdown tracing provider", err)
		return err
	}

	tm.logger.Info(ctx, "Tracing provider shutdown successfully")
	return nil
}
