// Package monitoring provides adapters to connect the domain's metrics interface with a concrete implementation like Prometheus.
package monitoring

import (
	"time"

	"github.com/turtacn/txauth/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface, sending metrics to a Prometheus backend.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter creates a new adapter that wraps a concrete Prometheus Metrics object,
// satisfying the domain's Metrics interface.
// NewMetricsAdapter 创建一个包装具体 Prometheus Metrics 对象的新适配器。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

// RecordTokenIssue delegates the call to the underlying Prometheus Metrics object.
// RecordTokenIssue 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordTokenIssue(tokenType string, success bool, duration time.Duration, errorCode string) {
	a.metrics.RecordTokenIssue(tokenType, success, duration, errorCode)
}

// RecordValidation delegates the call to the underlying Prometheus Metrics object.
// RecordValidation 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordValidation(mode string, success bool, duration time.Duration, errorCode string) {
	a.metrics.RecordValidation(mode, success, duration, errorCode)
}

// RecordValidationStep 记录验证状态机的每一步。
func (a *MetricsAdapter) RecordValidationStep(mode, state string) {
	a.metrics.RecordValidationStep(mode, state)
}

// RecordTokenRevoke delegates the call to the underlying Prometheus Metrics object.
// RecordTokenRevoke 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordTokenRevoke(reason string) {
	a.metrics.RecordTokenRevocation(reason)
}
