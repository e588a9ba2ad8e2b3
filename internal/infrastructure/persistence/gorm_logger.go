package persistence

import (
	"context"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// GormLogger routes gorm's SQL logging through logger.Logger. Queries are
// logged at debug level, slow ones and failures at warn/error.
type GormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger creates a GormLogger. A zero slowThreshold disables
// slow-query warnings.
func NewGormLogger(log logger.Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		log:           log.WithComponent("gorm"),
		level:         gormlogger.Warn,
		slowThreshold: slowThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

// Trace logs one executed statement. Record-not-found is not an error here.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []logger.Field{
		logger.String("sql", sql),
		logger.Int64("rows", rows),
		logger.Duration("elapsed", elapsed),
	}
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.log.Error(ctx, "SQL statement failed", err, fields...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log.Warn(ctx, "Slow SQL statement", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug(ctx, "SQL statement", fields...)
	}
}
