// Package service holds the token core: claims context, token issuer and the
// authorization validator, plus the ports they use to reach infrastructure.
package service

import (
	"context"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/errors"
)

//go:generate mockery --name AuditSink --output mocks --outpkg mocks
// AuditSink receives auditable token events. Implementations must not block
// the caller for long; failures are logged by the caller and never fail a request.
// AuditSink 接收可审计的令牌事件。
type AuditSink interface {
	// Record stores or forwards one event.
	// Record 存储或转发一个事件。
	Record(ctx context.Context, event *models.AuditEvent) error
}

//go:generate mockery --name RevocationChecker --output mocks --outpkg mocks
// RevocationChecker reports whether a token id has been revoked.
// RevocationChecker 报告令牌 ID 是否已被吊销。
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

//go:generate mockery --name UserResolver --output mocks --outpkg mocks
// UserResolver maps a token subject to the user it identifies.
// UserResolver 将令牌主体映射到其标识的用户。
type UserResolver interface {
	// ResolveUser returns the user for subject. claims are the verified claims
	// of the token the subject came from.
	ResolveUser(ctx context.Context, subject string, claims models.Claims) (*models.User, error)
}

// ClaimsUserResolver trusts the verified token: the user is the subject and
// its role is the "rol" claim.
type ClaimsUserResolver struct{}

// ResolveUser implements UserResolver.
func (ClaimsUserResolver) ResolveUser(_ context.Context, subject string, claims models.Claims) (*models.User, error) {
	if subject == "" {
		return nil, errors.NewSubjectMissingError(nil)
	}
	return &models.User{Username: subject, Role: claims.Role(), Enabled: true}, nil
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, *models.AuditEvent) error { return nil }

// NoopAuditSink discards every event.
func NoopAuditSink() AuditSink { return noopAuditSink{} }
