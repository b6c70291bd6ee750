package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components can run without a registry in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeRequests  *prometheus.CounterVec
	BridgeDuration  prometheus.Histogram
	PendingCallback prometheus.Gauge
	Timeouts        prometheus.Counter

	// Runtime metrics
	ContextSwitches *prometheus.CounterVec
	Dispatches      prometheus.Counter

	// Operation metrics (keystore, session)
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates a metrics collector registered with reg. Passing
// prometheus.DefaultRegisterer exposes the metrics on promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbridge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletbridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	m.BridgeRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbridge_requests_total",
			Help: "Bridge requests by terminal outcome code",
		},
		[]string{"code"},
	)
	m.BridgeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "walletbridge_request_duration_seconds",
			Help:    "Time from request acceptance to terminal resolution",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	m.PendingCallback = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletbridge_callbacks_pending",
			Help: "Number of callbacks awaiting resolution",
		},
	)
	m.Timeouts = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_callback_timeouts_total",
			Help: "Callbacks resolved by the timeout window",
		},
	)

	m.ContextSwitches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbridge_context_switches_total",
			Help: "Blockchain context switches by result",
		},
		[]string{"result"},
	)
	m.Dispatches = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_dispatches_total",
			Help: "Transaction request events dispatched into scripts",
		},
	)

	m.OperationCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbridge_operations_total",
			Help: "Total number of component operations",
		},
		[]string{"component", "operation", "status"},
	)
	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletbridge_operation_duration_seconds",
			Help:    "Component operation duration in seconds",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"component", "operation"},
	)

	m.GRPCCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbridge_grpc_calls_total",
			Help: "Total number of gRPC calls",
		},
		[]string{"method", "status"},
	)
	m.GRPCDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletbridge_grpc_duration_seconds",
			Help:    "gRPC call duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30},
		},
		[]string{"method"},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "walletbridge_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBridgeResult records the terminal outcome of one bridge request.
// code is "OK" for success or an error code.
func (m *Metrics) RecordBridgeResult(code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BridgeRequests.WithLabelValues(code).Inc()
	m.BridgeDuration.Observe(duration.Seconds())
}

// SetPendingCallbacks sets the number of pending callbacks
func (m *Metrics) SetPendingCallbacks(count int) {
	if m == nil {
		return
	}
	m.PendingCallback.Set(float64(count))
}

// IncTimeouts increments the callback timeout counter
func (m *Metrics) IncTimeouts() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}

// RecordContextSwitch records a context switch result ("ready", "failed")
func (m *Metrics) RecordContextSwitch(result string) {
	if m == nil {
		return
	}
	m.ContextSwitches.WithLabelValues(result).Inc()
}

// IncDispatches increments the dispatched event counter
func (m *Metrics) IncDispatches() {
	if m == nil {
		return
	}
	m.Dispatches.Inc()
}

// RecordOperation records a component operation
func (m *Metrics) RecordOperation(component, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationCalls.WithLabelValues(component, operation, status).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GRPCCalls.WithLabelValues(method, status).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}
