package revocation

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const (
	fetchRetryDelay = time.Second
	// handleAttempts bounds how often one event is applied before it is
	// committed anyway. kafka-go does not redeliver an uncommitted message
	// within a session, so skipping it would lose the revocation.
	handleAttempts = 5
)

// Event is a revocation shared over Kafka.
type Event struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
	// Origin identifies the publishing instance so it can skip its own events.
	Origin string `json:"origin"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PropagatingStore revokes locally and then publishes the revocation so that
// other instances deny the jti too.
type PropagatingStore struct {
	Store
	writer messageWriter
	origin string
	logger logger.Logger
}

// Consumer applies revocations published by other instances to the local
// store. This is the fan-in half of PropagatingStore.
type Consumer struct {
	local      Store
	reader     messageReader
	origin     string
	retryDelay time.Duration
	logger     logger.Logger
}

// NewPropagation wires a PropagatingStore and its Consumer around local
// using cfg.RevocationTopic. Every instance reads the topic in its own
// consumer group so that each one sees every event. The group is named after
// kafka.instance_id (default: hostname) so it survives restarts.
func NewPropagation(cfg config.KafkaConfig, local Store, log logger.Logger) (*PropagatingStore, *Consumer) {
	origin := instanceID()
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.RevocationTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.RevocationTopic,
		GroupID:        consumerGroup(cfg),
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return newPropagatingStore(local, writer, origin, log), newConsumer(local, reader, origin, log)
}

func newPropagatingStore(local Store, w messageWriter, origin string, log logger.Logger) *PropagatingStore {
	return &PropagatingStore{Store: local, writer: w, origin: origin, logger: log.WithComponent("RevocationPublisher")}
}

func newConsumer(local Store, r messageReader, origin string, log logger.Logger) *Consumer {
	return &Consumer{local: local, reader: r, origin: origin, retryDelay: fetchRetryDelay, logger: log.WithComponent("RevocationConsumer")}
}

func consumerGroup(cfg config.KafkaConfig) string {
	instance := cfg.InstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		return cfg.GroupID
	}
	return cfg.GroupID + "-" + instance
}

func instanceID() string {
	host, _ := os.Hostname()
	return host + "-" + uuid.NewString()[:8]
}

// Revoke denies jti locally, then publishes it. A publish failure is
// returned after the local revocation has taken effect.
func (s *PropagatingStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := s.Store.Revoke(ctx, jti, expiresAt); err != nil {
		return err
	}
	return s.publish(ctx, jti, expiresAt)
}

func (s *PropagatingStore) publish(ctx context.Context, jti string, expiresAt time.Time) error {
	payload, err := json.Marshal(Event{JTI: jti, ExpiresAt: expiresAt.UTC(), Origin: s.origin})
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to marshal revocation event")
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(jti), Value: payload}); err != nil {
		s.logger.Error(ctx, "failed to publish revocation", err, logger.String("jti", jti))
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to publish revocation")
	}
	return nil
}

// Claim claims jti locally and publishes only when this call won.
func (s *PropagatingStore) Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	won, err := s.Store.Claim(ctx, jti, expiresAt)
	if err != nil || !won {
		return won, err
	}
	return true, s.publish(ctx, jti, expiresAt)
}

// Close closes the Kafka writer.
func (s *PropagatingStore) Close() error {
	return s.writer.Close()
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Starting revocation consumer")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error(context.Background(), "failed to close kafka reader", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error(ctx, "failed to fetch revocation message", err)
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}
		if !c.apply(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "failed to commit revocation message", logger.Error(err))
		}
	}
}

// apply runs handle until it succeeds or handleAttempts is reached. It
// returns false only when ctx is done.
func (c *Consumer) apply(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		if attempt >= handleAttempts {
			c.logger.Error(ctx, "giving up on revocation event", err,
				logger.Int64("offset", msg.Offset), logger.Int("attempts", attempt))
			return true
		}
		c.logger.Warn(ctx, "failed to apply revocation, retrying",
			logger.Error(err), logger.Int64("offset", msg.Offset), logger.Int("attempt", attempt))
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.JTI == "" {
		// Poison message: acknowledge and move on.
		c.logger.Warn(ctx, "dropping malformed revocation event", logger.Int64("offset", msg.Offset))
		return nil
	}
	if event.Origin == c.origin {
		return nil
	}
	c.logger.Debug(ctx, "applying remote revocation", logger.String("jti", event.JTI), logger.String("origin", event.Origin))
	return c.local.Revoke(ctx, event.JTI, event.ExpiresAt)
}
