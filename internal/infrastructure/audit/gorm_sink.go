package audit

import (
	"context"
	"time"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"gorm.io/gorm"
)

// AuditRecord is the persisted row of an audit event.
type AuditRecord struct {
	EventID   string    `gorm:"primaryKey;size:36"`
	EventType string    `gorm:"size:64;index"`
	Subject   string    `gorm:"size:255;index"`
	TokenID   string    `gorm:"size:64;index"`
	TokenType string    `gorm:"size:32"`
	Mode      string    `gorm:"size:32"`
	Result    string    `gorm:"size:16"`
	Code      string    `gorm:"size:64"`
	Message   string    `gorm:"size:512"`
	Signature string    `gorm:"size:64"`
	Timestamp time.Time `gorm:"index"`
}

func (AuditRecord) TableName() string { return "txauth_audit_events" }

// GormSink stores audit events in a relational database.
type GormSink struct {
	db     *gorm.DB
	signer *Signer
}

// NewGormSink migrates the audit table and returns a sink writing to it.
func NewGormSink(db *gorm.DB, signer *Signer) (*GormSink, error) {
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to migrate audit table")
	}
	return &GormSink{db: db, signer: signer}, nil
}

// Record saves an AuditEvent to the database.
func (s *GormSink) Record(ctx context.Context, event *models.AuditEvent) error {
	_, sig, err := s.signer.Encode(event)
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to marshal audit event")
	}
	rec := AuditRecord{
		EventID:   event.EventID,
		EventType: string(event.EventType),
		Subject:   event.Subject,
		TokenID:   event.TokenID,
		TokenType: string(event.TokenType),
		Mode:      event.Mode,
		Result:    event.Result,
		Code:      string(event.Code),
		Message:   event.Message,
		Signature: sig,
		Timestamp: event.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to store audit event")
	}
	return nil
}
