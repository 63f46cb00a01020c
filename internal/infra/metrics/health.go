package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(stuckTasksCleanedTotal, idleTxTerminatedTotal, deadWorkersTotal, restartsTriggeredTotal)
}

var stuckTasksCleanedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_stuck_tasks_cleaned_total",
		Help: "Stuck processing tasks repaired by the health monitor, labeled by action.",
	},
	[]string{"action"}, // 'reset', 'failed'
)

var idleTxTerminatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_idle_tx_terminated_total",
		Help: "Idle-in-transaction backends terminated by the health monitor.",
	},
)

var deadWorkersTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_dead_workers_total",
		Help: "Worker servers marked unavailable after missing heartbeats.",
	},
)

var restartsTriggeredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_restarts_triggered_total",
		Help: "Dependent-service restarts triggered by the health monitor, labeled by cause.",
	},
	[]string{"cause"},
)

func IncStuckCleaned(action string) { stuckTasksCleanedTotal.WithLabelValues(norm(action)).Inc() }
func AddIdleTxTerminated(n int)     { idleTxTerminatedTotal.Add(float64(n)) }
func AddDeadWorkers(n int)          { deadWorkersTotal.Add(float64(n)) }
func IncRestartTriggered(cause string) {
	restartsTriggeredTotal.WithLabelValues(norm(cause)).Inc()
}
