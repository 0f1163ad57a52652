package docserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	opsApplied *prometheus.CounterVec
	opsDropped prometheus.Counter
	watchers   prometheus.Gauge
}

func newServerMetrics(reg *prometheus.Registry) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		opsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Subsystem: "docserver",
			Name:      "ops_applied_total",
			Help:      "Document ops applied, by op type.",
		}, []string{"type"}),
		opsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "scribe",
			Subsystem: "docserver",
			Name:      "ops_dropped_total",
			Help:      "Ops not delivered to a slow watcher.",
		}),
		watchers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "scribe",
			Subsystem: "docserver",
			Name:      "watchers",
			Help:      "Connected websocket watchers.",
		}),
	}
}
