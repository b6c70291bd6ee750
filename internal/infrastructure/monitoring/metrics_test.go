package monitoring

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
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBridgeResult("OK", time.Millisecond)
		m.SetPendingCallbacks(3)
		m.IncTimeouts()
		m.RecordContextSwitch("ready")
		m.IncDispatches()
		m.RecordGRPCCall("IsReady", "OK", time.Millisecond)
		NewTimer(m, "keystore", "decrypt").Stop("success")
	})
}

func TestRecordBridgeResult(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBridgeResult("OK", 10*time.Millisecond)
	m.RecordBridgeResult("TIMEOUT", time.Second)
	m.RecordBridgeResult("TIMEOUT", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeRequests.WithLabelValues("OK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BridgeRequests.WithLabelValues("TIMEOUT")))
}

func TestPendingGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetPendingCallbacks(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PendingCallback))
	m.SetPendingCallbacks(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingCallback))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/apps/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/apps/solana", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/apps/:id", "204")))
}
