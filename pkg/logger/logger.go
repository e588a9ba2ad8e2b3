// Package logger provides structured logging capabilities for the txauth token core.
// It wraps zap with a small context-aware interface, masks sensitive values and
// attaches OpenTelemetry trace identifiers to every entry.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/turtacn/txauth/pkg/constants"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand constructor for Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Zap-backed Implementation
// ================================================================================

// Options configures NewLogger.
type Options struct {
	Level  constants.LogLevel
	Format string // "json" (default) or "console"
	Output io.Writer
	// Switch, when set, overrides Level and allows changing it at runtime.
	Switch *LevelSwitch
}

// LevelSwitch is a runtime-adjustable log level shared by loggers built with it.
type LevelSwitch struct {
	atom zap.AtomicLevel
}

// NewLevelSwitch returns a switch starting at level.
func NewLevelSwitch(level constants.LogLevel) *LevelSwitch {
	return &LevelSwitch{atom: zap.NewAtomicLevelAt(toZapLevel(level))}
}

// Set changes the level. It reports whether the level actually changed.
func (s *LevelSwitch) Set(level constants.LogLevel) bool {
	next := toZapLevel(level)
	if s.atom.Level() == next {
		return false
	}
	s.atom.SetLevel(next)
	return true
}

// Level returns the current level name.
func (s *LevelSwitch) Level() string {
	return s.atom.Level().String()
}

type zapLogger struct {
	base *zap.Logger
}

// NewLogger creates a zap-backed Logger.
func NewLogger(opts Options) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var enabler zapcore.LevelEnabler = toZapLevel(opts.Level)
	if opts.Switch != nil {
		enabler = opts.Switch.atom
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), enabler)
	return &zapLogger{base: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))}
}

// NewDefaultLogger creates a logger with default settings (stdout, Info level)
func NewDefaultLogger() Logger {
	return NewLogger(Options{Level: constants.LogLevelInfo})
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{base: zap.NewNop()}
}

// Debug logs a debug message
func (l *zapLogger) Debug(ctx context.Context, message string, fields ...Field) {
	l.base.Debug(message, convertFields(ctx, fields)...)
}

// Info logs an informational message
func (l *zapLogger) Info(ctx context.Context, message string, fields ...Field) {
	l.base.Info(message, convertFields(ctx, fields)...)
}

// Warn logs a warning message
func (l *zapLogger) Warn(ctx context.Context, message string, fields ...Field) {
	l.base.Warn(message, convertFields(ctx, fields)...)
}

// Error logs an error message
func (l *zapLogger) Error(ctx context.Context, message string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Error(err))
	}
	l.base.Error(message, convertFields(ctx, fields)...)
}

// Fatal logs a fatal message and exits
func (l *zapLogger) Fatal(ctx context.Context, message string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Error(err))
	}
	l.base.Fatal(message, convertFields(ctx, fields)...)
}

// WithFields creates a new logger with additional base fields
func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{base: l.base.With(convertFields(nil, fields)...)}
}

// WithComponent creates a new logger with a component name
func (l *zapLogger) WithComponent(component string) Logger {
	return &zapLogger{base: l.base.With(zap.String("component", component))}
}

// ================================================================================
// Internal Helpers
// ================================================================================

func toZapLevel(level constants.LogLevel) zapcore.Level {
	switch level {
	case constants.LogLevelDebug:
		return zapcore.DebugLevel
	case constants.LogLevelWarn:
		return zapcore.WarnLevel
	case constants.LogLevelError:
		return zapcore.ErrorLevel
	case constants.LogLevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func convertFields(ctx context.Context, fields []Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+3)

	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			)
		}
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}

	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, sanitizeValue(f.Key, f.Value)))
	}
	return zapFields
}

// sanitizeValue sanitizes sensitive field values
func sanitizeValue(key string, value interface{}) interface{} {
	sensitiveKeys := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"private_key",
		"plaintext",
	}

	keyLower := strings.ToLower(key)
	// token_type and token_id are identifiers, not credentials.
	if keyLower == "token_type" || keyLower == "token_id" {
		return value
	}
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			if str, ok := value.(string); ok && len(str) > 0 {
				return maskString(str)
			}
			return "***REDACTED***"
		}
	}

	return value
}

// maskString partially masks a string value
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
