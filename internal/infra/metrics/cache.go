package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of cache requests.",
	},
	[]string{"cache", "status"}, // status: hit, miss, error
)

func IncCacheRequest(cache, status string) {
	cacheRequestsTotal.WithLabelValues(norm(cache), norm(status)).Inc()
}
