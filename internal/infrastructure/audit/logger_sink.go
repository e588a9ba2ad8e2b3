package audit

import (
	"context"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/logger"
)

// LoggerSink writes each event as a structured log line.
type LoggerSink struct {
	log    logger.Logger
	signer *Signer
}

func NewLoggerSink(log logger.Logger, signer *Signer) *LoggerSink {
	return &LoggerSink{log: log.WithComponent("audit"), signer: signer}
}

func (s *LoggerSink) Record(ctx context.Context, event *models.AuditEvent) error {
	fields := []logger.Field{
		logger.String("event_id", event.EventID),
		logger.String("event_type", string(event.EventType)),
		logger.String("result", event.Result),
		logger.String("subject", event.Subject),
		logger.String("jti", event.TokenID),
		logger.String("token_type", string(event.TokenType)),
		logger.Time("timestamp", event.Timestamp),
	}
	if event.Mode != "" {
		fields = append(fields, logger.String("mode", event.Mode))
	}
	if event.Code != "" {
		fields = append(fields, logger.String("code", string(event.Code)), logger.String("reason", event.Message))
	}
	if s.signer != nil {
		_, sig, err := s.signer.Encode(event)
		if err != nil {
			return err
		}
		fields = append(fields, logger.String("signature", sig))
	}
	s.log.Info(ctx, "audit", fields...)
	return nil
}
