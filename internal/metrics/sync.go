package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const tickWindow = 12 // ticks in the rolling duration average

// SyncMetrics instruments the sync engine. Each instance owns its registry, so
// several engines (or tests) never collide on metric names.
type SyncMetrics struct {
	registry *prometheus.Registry

	Ticks             prometheus.Counter
	Upserts           prometheus.Counter
	UpsertFailures    prometheus.Counter
	ValuesUnavailable prometheus.Counter
	ColumnsCreated    *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	TrackedMetrics    prometheus.Gauge

	started  time.Time
	tickAvg  *RollingMetric
	mu       sync.RWMutex
	lastTick time.Time
}

// NewSyncMetrics creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewSyncMetrics() *SyncMetrics {
	m := &SyncMetrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		tickAvg:  NewRollingMetric(tickWindow),

		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisync_ticks_total",
			Help: "Completed sync ticks.",
		}),
		Upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisync_upserts_total",
			Help: "Node values written to the shared store.",
		}),
		UpsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisync_upsert_failures_total",
			Help: "Node value writes that failed and were dropped.",
		}),
		ValuesUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisync_values_unavailable_total",
			Help: "Entity/metric pairs skipped because the value source had no value.",
		}),
		ColumnsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multisync_columns_created_total",
			Help: "Node columns created by this process.",
		}, []string{"table"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "multisync_tick_duration_seconds",
			Help:    "Wall time of one sync tick.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		TrackedMetrics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multisync_tracked_metrics",
			Help: "Metric names in the local tracked cache.",
		}),
	}

	m.registry.MustRegister(
		m.Ticks,
		m.Upserts,
		m.UpsertFailures,
		m.ValuesUnavailable,
		m.ColumnsCreated,
		m.TickDuration,
		m.TrackedMetrics,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "multisync_uptime_seconds",
			Help: "Seconds since the sync engine started.",
		}, func() float64 { return time.Since(m.started).Seconds() }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveTick records one finished tick.
func (m *SyncMetrics) ObserveTick(d time.Duration) {
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	m.tickAvg.Add(d.Seconds())

	m.mu.Lock()
	m.lastTick = time.Now()
	m.mu.Unlock()
}

// LastTick returns when the last tick finished, zero if none has.
func (m *SyncMetrics) LastTick() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTick
}

// AverageTick returns the rolling average tick duration.
func (m *SyncMetrics) AverageTick() time.Duration {
	return time.Duration(m.tickAvg.Average() * float64(time.Second))
}

func (m *SyncMetrics) Started() time.Time {
	return m.started
}

func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
