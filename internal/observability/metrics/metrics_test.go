package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("trigger", "api"),
		attribute.String("customer_id", "456"),
		attribute.String("severity", "warning"),
	)
	require.Len(t, attrs, 2)

	keys := map[attribute.Key]bool{}
	for _, attr := range attrs {
		keys[attr.Key] = true
	}
	assert.True(t, keys["trigger"], "expected trigger to be retained")
	assert.True(t, keys["severity"], "expected severity to be retained")
	assert.False(t, keys["customer_id"], "expected customer_id to be dropped")
}

func TestHTTPMetricsObserveRequest(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())

	m.ObserveRequest(http.MethodGet, "/v1/orders/:id/facts", http.StatusOK, 25*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/orders/:id/facts", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/v1/orders/:id/facts", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "unknown", "404")))
}

func TestGinMiddlewareRecordsRegisteredRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/v1/reconciliation/runs/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reconciliation/runs/42", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/v1/reconciliation/runs/:id", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Second)
	m.IncInFlight()
	m.DecInFlight()

	mw := GinMiddleware(nil)
	require.NotNil(t, mw)
}
