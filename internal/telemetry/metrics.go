package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tff"

// Metrics wraps the Prometheus counters and histogram a session
// reports against, grounded on buildkite-agent/agent/metrics.go's
// promauto.New*-per-field shape. Unlike that file's package-level
// globals, these live on an instance bound to its own registry so
// more than one session (or a test) can run without colliding on the
// default registry. A nil *Metrics is valid and every method becomes
// a no-op, matching the "observers must not block" nil-safety spec.md
// §6 calls for.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal         *prometheus.CounterVec
	invalidSequences    prometheus.Counter
	bytesTotal          *prometheus.CounterVec
	escTimeouts         prometheus.Counter
	parseLatencySeconds prometheus.Histogram
}

// NewMetrics constructs a Metrics instance registered to a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Count of terminal events emitted by the parser, by kind",
		}, []string{"kind"}),
		invalidSequences: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invalid_sequences_total",
			Help:      "Count of malformed escape sequences recovered from",
		}),
		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_total",
			Help:      "Count of bytes processed, by stream and direction",
		}, []string{"stream", "direction"}),
		escTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "esc_timeout_total",
			Help:      "Count of ESC timers that fired before a follow-on byte arrived",
		}),
		parseLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "parse_latency_seconds",
			Help:      "Wall time spent in Process.ProcessInput/ProcessOutput",
			Buckets:   prometheus.ExponentialBuckets(0.000025, 2, 16),
		}),
	}
}

// Handler returns an http.Handler serving this instance's registry in
// the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncEvent increments tff_events_total{kind=kind}.
func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind).Inc()
}

// IncInvalid increments tff_invalid_sequences_total.
func (m *Metrics) IncInvalid() {
	if m == nil {
		return
	}
	m.invalidSequences.Inc()
}

// AddBytes increments tff_bytes_total{stream,direction} by n.
func (m *Metrics) AddBytes(stream, direction string, n int) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues(stream, direction).Add(float64(n))
}

// IncEscTimeout increments tff_esc_timeout_total.
func (m *Metrics) IncEscTimeout() {
	if m == nil {
		return
	}
	m.escTimeouts.Inc()
}

// ObserveParseLatency records a Process.ProcessInput/ProcessOutput
// duration in seconds.
func (m *Metrics) ObserveParseLatency(seconds float64) {
	if m == nil {
		return
	}
	m.parseLatencySeconds.Observe(seconds)
}
