package service

import (
	"time"
)

// Metrics defines the interface for collecting token-core metrics.
// This abstraction keeps the domain independent of the monitoring backend (e.g., Prometheus).
// Metrics 定义了收集令牌核心指标的接口。
// 这种抽象使领域层独立于具体的监控实现（例如 Prometheus）。
type Metrics interface {
	// RecordTokenIssue records one issued (or failed) token of tokenType.
	// RecordTokenIssue 记录一次令牌颁发。
	RecordTokenIssue(tokenType string, success bool, duration time.Duration, errorCode string)

	// RecordValidation records the outcome of one Validate call for mode.
	// RecordValidation 记录一次验证的结果。
	RecordValidation(mode string, success bool, duration time.Duration, errorCode string)

	// RecordValidationStep counts a state-machine transition.
	// RecordValidationStep 记录状态机的一次转换。
	RecordValidationStep(mode, state string)

	// RecordTokenRevoke records an event when a token is revoked.
	// RecordTokenRevoke 记录令牌被吊销的事件。
	RecordTokenRevoke(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordTokenIssue(string, bool, time.Duration, string) {}
func (noopMetrics) RecordValidation(string, bool, time.Duration, string) {}
func (noopMetrics) RecordValidationStep(string, string)                  {}
func (noopMetrics) RecordTokenRevoke(string)                             {}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }
