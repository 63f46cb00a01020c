package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(phaseLatencySeconds, phaseFailuresTotal, callbacksTotal) }

var phaseLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_phase_latency_seconds",
		Help:    "Per-phase wall time from dispatch to result.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	},
	[]string{"phase", "success"},
)

var phaseFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_phase_failures_total",
		Help: "Phase failures reported by the worker, labeled by phase.",
	},
	[]string{"phase"},
)

var callbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_worker_callbacks_total",
		Help: "Worker callbacks received, labeled by delivery outcome.",
	},
	[]string{"outcome"}, // 'delivered', 'orphaned'
)

func ObservePhase(phase string, seconds float64, success bool) {
	phaseLatencySeconds.WithLabelValues(norm(phase), strconv.FormatBool(success)).Observe(seconds)
	if !success {
		phaseFailuresTotal.WithLabelValues(norm(phase)).Inc()
	}
}

func IncCallback(outcome string) { callbacksTotal.WithLabelValues(norm(outcome)).Inc() }
