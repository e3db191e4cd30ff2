package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(benefitRetriesTotal) }

var benefitRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "benefit_retries_total",
		Help: "Background benefit retries by result.",
	},
	[]string{"result"}, // queued, dropped, applied, failed
)

func IncBenefitRetry(result string) { benefitRetriesTotal.WithLabelValues(result).Inc() }
