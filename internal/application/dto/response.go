package dto

import (
	"time"

	"github.com/turtacn/txauth/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	TraceID   string                `json:"trace_id,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应. Errors that are not CBCError values are
// reported as internal errors without their text.
func ErrorResponse(err error, traceID string) *APIResponse {
	return &APIResponse{
		Success:   false,
		Error:     errors.ToGenericErrorResponse(err),
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}
