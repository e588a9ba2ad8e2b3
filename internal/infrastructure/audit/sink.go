// Package audit delivers token audit events to a log, a Kafka topic or a
// database table.
package audit

import (
	"context"
	"errors"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	cbcerrors "github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
	"gorm.io/gorm"
)

// New builds the sink selected by audit.sink. db is only used by the
// database sink and may be nil otherwise.
func New(cfg *config.Config, db *gorm.DB, log logger.Logger) (service.AuditSink, error) {
	signer := NewSigner(cfg.Audit.SigningKey)
	switch cfg.Audit.Sink {
	case "log", "":
		return NewLoggerSink(log, signer), nil
	case "kafka":
		return NewKafkaSink(cfg.Kafka, signer, log), nil
	case "database":
		if db == nil {
			return nil, cbcerrors.NewInvalidArgumentError("audit.sink database requires a database connection")
		}
		return NewGormSink(db, signer)
	case "none":
		return service.NoopAuditSink(), nil
	default:
		return nil, cbcerrors.NewInvalidArgumentError("unknown audit sink %q", cfg.Audit.Sink)
	}
}

type fanOut []service.AuditSink

// FanOut records each event to every sink. All sinks are attempted; their
// errors are joined.
func FanOut(sinks ...service.AuditSink) service.AuditSink {
	return fanOut(sinks)
}

func (f fanOut) Record(ctx context.Context, event *models.AuditEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
