package audit

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// SignatureHeader carries the event HMAC on Kafka messages.
const SignatureHeader = "x-audit-signature"

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to the audit topic, keyed by subject.
type KafkaSink struct {
	writer messageWriter
	signer *Signer
	logger logger.Logger
}

// NewKafkaSink creates a KafkaSink writing to cfg.AuditTopic.
func NewKafkaSink(cfg config.KafkaConfig, signer *Signer, log logger.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.AuditTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(writer, signer, log)
}

func newKafkaSink(w messageWriter, signer *Signer, log logger.Logger) *KafkaSink {
	return &KafkaSink{writer: w, signer: signer, logger: log.WithComponent("KafkaAuditSink")}
}

// Record sends an audit event to the Kafka topic.
func (s *KafkaSink) Record(ctx context.Context, event *models.AuditEvent) error {
	payload, sig, err := s.signer.Encode(event)
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to marshal audit event")
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: payload,
		Time:  event.Timestamp,
	}
	if sig != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: SignatureHeader, Value: []byte(sig)})
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error(ctx, "failed to write audit event to Kafka", err, logger.String("event_id", event.EventID))
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to publish audit event")
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
