package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/txauth/internal/domain/models"
)

type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Record(ctx context.Context, event *models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockRevocationChecker struct {
	mock.Mock
}

func (m *MockRevocationChecker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

type MockUserResolver struct {
	mock.Mock
}

func (m *MockUserResolver) ResolveUser(ctx context.Context, subject string, claims models.Claims) (*models.User, error) {
	args := m.Called(ctx, subject, claims)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordTokenIssue(tokenType string, success bool, duration time.Duration, errorCode string) {
	m.Called(tokenType, success, duration, errorCode)
}

func (m *MockMetrics) RecordValidation(mode string, success bool, duration time.Duration, errorCode string) {
	m.Called(mode, success, duration, errorCode)
}

func (m *MockMetrics) RecordValidationStep(mode, state string) {
	m.Called(mode, state)
}

func (m *MockMetrics) RecordTokenRevoke(reason string) {
	m.Called(reason)
}
