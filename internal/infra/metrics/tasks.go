package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tasksProcessedTotal, tasksEnqueuedTotal, queueDepth, claimsEmptyTotal) }

var tasksProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_tasks_processed_total",
		Help: "Total number of tasks finished by the queue processor, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'retry'
)

var tasksEnqueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_tasks_enqueued_total",
		Help: "Total number of tasks accepted into the processing queue.",
	},
)

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Current number of tasks per status.",
	},
	[]string{"status"},
)

var claimsEmptyTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_claims_empty_total",
		Help: "Polling ticks that found no claimable task.",
	},
)

func IncTaskProcessed(status string) { tasksProcessedTotal.WithLabelValues(norm(status)).Inc() }
func IncTaskEnqueued()               { tasksEnqueuedTotal.Inc() }
func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(norm(status)).Set(float64(n))
}
func IncClaimEmpty() { claimsEmptyTotal.Inc() }
