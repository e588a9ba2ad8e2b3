package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/txauth/pkg/logger"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]Checker
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checks map[string]Checker, log logger.Logger) *HealthHandler {
	if checks == nil {
		checks = map[string]Checker{}
	}
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, log: log}
}

// LivenessCheck always answers 200 while the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadinessCheck answers 503 when any dependency check fails.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, httpStatus := "ready", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn(ctx, "Readiness check failed", logger.String("check", name), logger.Error(err))
			results[name] = err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    results,
	})
}
