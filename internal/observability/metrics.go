package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	binaryPortRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "binary_port",
			Name:      "requests_total",
			Help:      "Binary port requests by kind and error code.",
		},
		[]string{"kind", "error_code"},
	)
	binaryPortDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Subsystem: "binary_port",
			Name:      "request_duration_seconds",
			Help:      "Binary port decode+dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	binaryPortConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerd",
			Subsystem: "binary_port",
			Name:      "connections_active",
			Help:      "Currently open binary port connections.",
		},
	)
	binaryPortClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "binary_port",
			Name:      "connections_closed_total",
			Help:      "Closed binary port connections by reason.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			binaryPortRequests,
			binaryPortDuration,
			binaryPortConnections,
			binaryPortClosed,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordBinaryRequest counts one answered binary port request.
func RecordBinaryRequest(kind string, errorCode uint16, duration time.Duration) {
	RegisterMetrics()
	binaryPortRequests.WithLabelValues(kind, strconv.FormatUint(uint64(errorCode), 10)).Inc()
	binaryPortDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func BinaryConnectionOpened() {
	RegisterMetrics()
	binaryPortConnections.Inc()
}

func BinaryConnectionClosed(reason string) {
	RegisterMetrics()
	binaryPortConnections.Dec()
	binaryPortClosed.WithLabelValues(reason).Inc()
}
