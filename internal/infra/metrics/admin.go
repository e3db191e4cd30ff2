package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminActionTotal) }

var adminActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_action_total",
		Help: "Tracks admin code-management calls.",
	},
	[]string{"action", "status"}, // status: 'ok', 'unauthorized', 'error'
)

func IncAdminAction(action, status string) {
	adminActionTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
