package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitBlocksTotal) }

var rateLimitBlocksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_blocks_total",
		Help: "Redemption attempts refused by the limiter before touching the store.",
	},
	[]string{"scope"}, // 'code', 'account'
)

func IncRateLimitBlock(scope string) {
	rateLimitBlocksTotal.WithLabelValues(norm(scope)).Inc()
}
