package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates or assigns a request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// Logging logs every request once it completes.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "Request processed",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Int64("latency_ms", time.Since(start).Milliseconds()),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery turns handler panics into 500 responses.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error(c.Request.Context(), "Panic recovered", fmt.Errorf("%v", recovered),
			logger.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":             string(constants.ErrCodeInternal),
			"error_description": "An unexpected error occurred",
		})
	})
}

// Observability returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// Metrics are labeled with the route template, not the raw path.
// Observability 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
func Observability(tracer trace.Tracer, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}
		method := c.Request.Method

		ctx := monitoring.ExtractTraceContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		metrics.ActiveRequestsInc(path, method)
		c.Next()
		metrics.ActiveRequestsDec(path, method)

		status := c.Writer.Status()
		metrics.ObserveRequestDuration(path, method, status, time.Since(start).Seconds())
		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
