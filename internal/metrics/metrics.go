// Package metrics exposes Prometheus instrumentation for the detection and
// response pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's collectors behind a single registry so
// tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	ActiveBlocks   prometheus.Gauge

	SessionsTracked  prometheus.Counter
	ThreatsDetected  *prometheus.CounterVec
	BlocksCreated    prometheus.Counter
	BlocksRemoved    prometheus.Counter
	SweepRemoved     prometheus.Counter
	AnalysisDuration prometheus.Histogram
}

// New builds a metrics bundle on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vncguard",
			Name:      "active_sessions",
			Help:      "Number of VNC sessions currently tracked as active.",
		}),
		ActiveBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vncguard",
			Name:      "active_blocks",
			Help:      "Number of addresses currently blocked.",
		}),
		SessionsTracked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vncguard",
			Name:      "sessions_tracked_total",
			Help:      "Total VNC sessions observed since start.",
		}),
		ThreatsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vncguard",
			Name:      "threats_detected_total",
			Help:      "Threats recorded, by detection method and severity.",
		}, []string{"method", "severity"}),
		BlocksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vncguard",
			Name:      "blocks_created_total",
			Help:      "Address blocks created since start.",
		}),
		BlocksRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vncguard",
			Name:      "blocks_removed_total",
			Help:      "Address blocks removed since start, manual or expired.",
		}),
		SweepRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vncguard",
			Name:      "sweep_expired_blocks_total",
			Help:      "Blocks removed by the periodic expiry sweep.",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vncguard",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one traffic analysis pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler serving this bundle's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
