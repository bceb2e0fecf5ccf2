// Package metrics holds the prometheus collectors for the dashboard pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anomaly_dashboard"

// Metrics groups the pipeline collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	frames      *prometheus.CounterVec
	events      *prometheus.CounterVec
	upstream    *prometheus.HistogramVec
	bufferLen   prometheus.Gauge
	alarmPoints prometheus.Gauge
	connected   prometheus.Gauge
	notices     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Inbound socket frames by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Dispatched dashboard events by kind and result.",
		}, []string{"kind", "result"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "request_seconds",
			Help:      "Detector request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		bufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "points",
			Help:      "Points currently held in the rolling buffer.",
		}),
		alarmPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "alarm_points",
			Help:      "Buffered points whose score exceeds the threshold.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "open",
			Help:      "1 while the socket session is open.",
		}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User notices by level.",
		}, []string{"level"}),
	}
	m.reg.MustRegister(
		m.frames, m.events, m.upstream, m.bufferLen, m.alarmPoints, m.connected, m.notices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// CountFrame records one inbound socket frame.
func (m *Metrics) CountFrame(outcome string) {
	m.frames.WithLabelValues(outcome).Inc()
}

// CountEvent records one dispatched event; result is "ok" or an error code.
func (m *Metrics) CountEvent(kind, result string) {
	m.events.WithLabelValues(kind, result).Inc()
}

// ObserveUpstream records detector latency in seconds.
func (m *Metrics) ObserveUpstream(endpoint string, seconds float64) {
	m.upstream.WithLabelValues(endpoint).Observe(seconds)
}

// SetBuffer updates the buffer gauges.
func (m *Metrics) SetBuffer(points, alarms int) {
	m.bufferLen.Set(float64(points))
	m.alarmPoints.Set(float64(alarms))
}

// SetOpen flips the socket gauge.
func (m *Metrics) SetOpen(open bool) {
	if open {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// CountNotice records one user notice.
func (m *Metrics) CountNotice(level string) {
	m.notices.WithLabelValues(level).Inc()
}
