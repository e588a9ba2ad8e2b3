package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/txauth/pkg/constants"
)

// AuditEventType names an auditable token event.
type AuditEventType string

const (
	AuditEventTokenIssued      AuditEventType = "token_issued"
	AuditEventTokenRevoked     AuditEventType = "token_revoked"
	AuditEventAuthorized       AuditEventType = "request_authorized"
	AuditEventRejected         AuditEventType = "request_rejected"
	AuditEventSigningKeyLoaded AuditEventType = "signing_key_loaded"
	AuditEventSigningKeyNew    AuditEventType = "signing_key_generated"
)

// AuditEvent represents a single audit trail event.
type AuditEvent struct {
	EventID   string              `json:"event_id"`
	EventType AuditEventType      `json:"event_type"`
	Subject   string              `json:"subject,omitempty"`
	TokenID   string              `json:"jti,omitempty"`
	TokenType constants.TokenType `json:"token_type,omitempty"`
	Mode      string              `json:"mode,omitempty"`
	Result    string              `json:"result"`
	Code      constants.ErrorCode `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewAuditEvent creates a new audit event stamped with the current time.
func NewAuditEvent(eventType AuditEventType, result string) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
}

// WithSubject sets the subject of the event.
func (a *AuditEvent) WithSubject(subject string) *AuditEvent {
	a.Subject = subject
	return a
}

// WithToken sets the token identity fields of the event.
func (a *AuditEvent) WithToken(jti string, tokenType constants.TokenType) *AuditEvent {
	a.TokenID = jti
	a.TokenType = tokenType
	return a
}

// WithMode sets the validation mode of the event.
func (a *AuditEvent) WithMode(mode string) *AuditEvent {
	a.Mode = mode
	return a
}

// WithFailure records the error code and message of a rejection.
func (a *AuditEvent) WithFailure(code constants.ErrorCode, message string) *AuditEvent {
	a.Code = code
	a.Message = message
	return a
}
