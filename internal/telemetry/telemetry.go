// Package telemetry exposes the daemon's own health as Prometheus
// instruments: collection cycles, emitted points, sink writes, scheduler
// overruns, and local-store pressure. The admin server serves the registry
// on /metrics.
//
// All methods are safe on a nil receiver so pipeline components can run
// without telemetry in tests.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// =============================================================================
// Metrics
// =============================================================================

// Metrics holds the daemon's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	cycleErrors  *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	points       *prometheus.CounterVec
	overruns     prometheus.Counter

	sinkBatches *prometheus.CounterVec
	sinkPoints  *prometheus.CounterVec
	sinkErrors  *prometheus.CounterVec

	bufferUsage  prometheus.Gauge
	backpressure prometheus.Gauge
}

// New creates the instrument set on a fresh registry, including the standard
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_collect_cycles_total",
			Help: "Collection cycles executed, by system and metric class.",
		}, []string{"system", "class"}),

		cycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_collect_errors_total",
			Help: "Collection cycles that ended in an error.",
		}, []string{"system", "class"}),

		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arraymon_collect_duration_seconds",
			Help:    "Wall time of one collection cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"class"}),

		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_points_written_total",
			Help: "Points handed to the sink fanout.",
		}, []string{"system", "class"}),

		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arraymon_scheduler_overruns_total",
			Help: "Scheduler ticks whose work exceeded the tick interval.",
		}),

		sinkBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_sink_batches_total",
			Help: "Batches written per sink backend.",
		}, []string{"sink"}),

		sinkPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_sink_points_total",
			Help: "Points written per sink backend.",
		}, []string{"sink"}),

		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arraymon_sink_errors_total",
			Help: "Failed batch writes per sink backend.",
		}, []string{"sink"}),

		bufferUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arraymon_store_buffer_usage_ratio",
			Help: "Local store ingest buffer fill ratio (0..1).",
		}),

		backpressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arraymon_store_backpressure_level",
			Help: "Local store backpressure level (0=normal 1=warning 2=critical 3=emergency).",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles,
		m.cycleErrors,
		m.cycleSeconds,
		m.points,
		m.overruns,
		m.sinkBatches,
		m.sinkPoints,
		m.sinkErrors,
		m.bufferUsage,
		m.backpressure,
	)

	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// =============================================================================
// Recording
// =============================================================================

// ObserveCycle records one finished collection cycle.
func (m *Metrics) ObserveCycle(system, class string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(system, class).Inc()
	m.cycleSeconds.WithLabelValues(class).Observe(elapsed.Seconds())
	if err != nil {
		m.cycleErrors.WithLabelValues(system, class).Inc()
	}
}

// AddPoints records points emitted by a cycle.
func (m *Metrics) AddPoints(system, class string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.points.WithLabelValues(system, class).Add(float64(n))
}

// SchedulerOverrun records a tick whose work ran past the interval.
func (m *Metrics) SchedulerOverrun() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}

// ObserveSinkWrite records one batch write against a sink backend.
func (m *Metrics) ObserveSinkWrite(sink string, points int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
		return
	}
	m.sinkBatches.WithLabelValues(sink).Inc()
	m.sinkPoints.WithLabelValues(sink).Add(float64(points))
}

// SetStoreBufferUsage publishes the local store's buffer fill ratio.
func (m *Metrics) SetStoreBufferUsage(ratio float64) {
	if m == nil {
		return
	}
	m.bufferUsage.Set(ratio)
}

// SetStoreBackpressure publishes the local store's backpressure level.
func (m *Metrics) SetStoreBackpressure(level int) {
	if m == nil {
		return
	}
	m.backpressure.Set(float64(level))
}
