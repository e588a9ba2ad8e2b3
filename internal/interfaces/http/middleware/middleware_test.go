package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(constants.ContextKeyRequestID).(string)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), seen)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(logger.NewNopLogger()))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestObservability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(Observability(noop.NewTracerProvider().Tracer("test"), metrics))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPActiveRequests.WithLabelValues("/items/:id", "GET")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.HTTPRequestDuration), "route templates keep cardinality low")
}
