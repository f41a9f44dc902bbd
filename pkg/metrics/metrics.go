// Package metrics exposes Prometheus counters for webhook dispatch and
// upstream marketplace calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sellerbot"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	upstreamCalls *prometheus.CounterVec
	upstreamTime  *prometheus.HistogramVec
	inits         *prometheus.CounterVec
	flushTimeouts prometheus.Counter
	flushWait     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound updates by dispatch outcome.",
		}, []string{"outcome"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Marketplace API calls by platform, operation and result.",
		}, []string{"platform", "op", "result"}),
		upstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_seconds",
			Help:      "Marketplace API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		inits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_initializations_total",
			Help:      "Session build attempts by result.",
		}, []string{"result"}),
		flushTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_timeouts_total",
			Help:      "Dispatches that returned before their operations finished.",
		}),
		flushWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_wait_seconds",
			Help:      "Time spent waiting for the operations of one update.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
	}

	m.registry.MustRegister(
		m.events,
		m.upstreamCalls,
		m.upstreamTime,
		m.inits,
		m.flushTimeouts,
		m.flushWait,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCall implements marketplace.Observer.
func (m *Metrics) ObserveCall(platform, op string, _ int, err error, elapsed time.Duration) {
	m.upstreamCalls.WithLabelValues(platform, op, result(err)).Inc()
	m.upstreamTime.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// ObserveInit implements session.Observer.
func (m *Metrics) ObserveInit(err error) {
	m.inits.WithLabelValues(result(err)).Inc()
}

// ObserveEvent implements session.Observer.
func (m *Metrics) ObserveEvent(outcome string) {
	m.events.WithLabelValues(outcome).Inc()
}

// ObserveFlush implements session.Observer.
func (m *Metrics) ObserveFlush(elapsed time.Duration, timedOut bool) {
	m.flushWait.Observe(elapsed.Seconds())
	if timedOut {
		m.flushTimeouts.Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
