// Package telemetry exports agent metrics to Prometheus and traces to an
// OTLP collector. Observer plugs both into the agent loop and the tool
// registry.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "squadagent"

// MetricsServiceName is the service registry key of the shared Metrics.
const MetricsServiceName = "telemetry.metrics"

// Metrics holds the Prometheus collectors. Each Metrics owns its registry
// so tests and multiple instances do not collide.
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	modelLatency prometheus.Histogram
	tokens       *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolLatency  *prometheus.HistogramVec
	sessions     prometheus.Gauge
}

// NewMetrics creates and registers the collectors, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Agent steps by kind (ok, final_answer or an error kind).",
		}, []string{"kind"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_seconds",
			Help:      "Latency of model completions.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by model completions.",
		}, []string{"type"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Latency of tool invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Sessions held in the in-memory cache.",
		}),
	}
	reg.MustRegister(
		m.runs, m.steps, m.modelLatency, m.tokens, m.toolCalls, m.toolLatency, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetLiveSessions records the number of cached sessions.
func (m *Metrics) SetLiveSessions(n int) {
	m.sessions.Set(float64(n))
}

func (m *Metrics) observeTool(name string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolCalls.WithLabelValues(name, status).Inc()
	m.toolLatency.WithLabelValues(name).Observe(d.Seconds())
}
