package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_cache_requests_total",
		Help: "Status-snapshot cache lookups, labeled by cache and result.",
	},
	[]string{"cache", "result"}, // result: 'hit', 'miss'
)

func IncCacheRequest(cache, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}
