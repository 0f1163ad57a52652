// Package metrics exports typing activity as Prometheus metrics and keeps a
// short throughput window for progress logging.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/scribe/internal/scribe"
)

// Collector implements scribe.Observer.
type Collector struct {
	reg *prometheus.Registry

	chars         prometheus.Counter
	insertLatency prometheus.Histogram
	activeWriters prometheus.Gauge
	writersDone   *prometheus.CounterVec
	insertErrors  prometheus.Counter
	pausedTicks   prometheus.Counter

	throughput *ThroughputTracker
	total      atomic.Int64
	active     atomic.Int64
}

var _ scribe.Observer = (*Collector)(nil)

// NewCollector registers the typing metrics on reg. A nil reg gets a fresh
// registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		chars: f.NewCounter(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "chars_typed_total",
			Help:      "Characters inserted into shared documents.",
		}),
		insertLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scribe",
			Name:      "insert_gap_seconds",
			Help:      "Time between consecutive insertions of one writer.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		activeWriters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "scribe",
			Name:      "writers_active",
			Help:      "Writers currently typing or paused.",
		}),
		writersDone: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "writers_finished_total",
			Help:      "Writers that finished, by final state.",
		}, []string{"state"}),
		insertErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "insert_errors_total",
			Help:      "Insertions that failed.",
		}),
		pausedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "paused_ticks_total",
			Help:      "Writer ticks skipped while playback was paused.",
		}),
		throughput: NewThroughputTracker(),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) Throughput() *ThroughputTracker { return c.throughput }

func (c *Collector) WriterStarted() {
	c.active.Add(1)
	c.activeWriters.Inc()
}

func (c *Collector) WriterFinished(state scribe.WriterState) {
	c.active.Add(-1)
	c.activeWriters.Dec()
	c.writersDone.WithLabelValues(string(state)).Inc()
}

func (c *Collector) Inserted(gap time.Duration) {
	c.total.Add(1)
	c.chars.Inc()
	c.insertLatency.Observe(gap.Seconds())
	c.throughput.IncInserted()
}

func (c *Collector) InsertFailed() {
	c.insertErrors.Inc()
	c.throughput.IncFailed()
}

func (c *Collector) PausedTick() {
	c.pausedTicks.Inc()
}

// Typed returns the number of characters inserted so far.
func (c *Collector) Typed() int64 { return c.total.Load() }

// Report logs progress every interval until ctx is done.
func (c *Collector) Report(ctx context.Context, every time.Duration, log *slog.Logger) {
	if every <= 0 {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("progress",
				"chars", c.total.Load(),
				"writers_active", c.active.Load(),
				"chars_per_sec", fmt.Sprintf("%.1f", c.throughput.Rate(5)),
			)
		}
	}
}
