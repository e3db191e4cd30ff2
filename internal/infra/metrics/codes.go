package metrics

import (
	"entitlement-service/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		codesIssuedTotal,
		codeRedemptionsTotal,
		codeCommitConflictsTotal,
		benefitApplyFailuresTotal,
	)
}

var (
	codesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codes_issued_total",
			Help: "Total number of codes minted, by class.",
		},
		[]string{"class"}, // 'admin', 'promotion'
	)

	codeRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_redemptions_total",
			Help: "Redemption attempts by outcome reason.",
		},
		[]string{"reason"}, // VALID, EXPIRED, RATE_LIMITED, ...
	)

	codeCommitConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_commit_conflicts_total",
			Help: "Conditional redemption commits rejected because the code changed underneath.",
		},
	)

	benefitApplyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benefit_apply_failures_total",
			Help: "Committed redemptions whose benefit could not be applied.",
		},
		[]string{"kind"},
	)
)

func AddCodesIssued(class model.CodeClass, n int) {
	codesIssuedTotal.WithLabelValues(norm(string(class))).Add(float64(n))
}

func IncRedemption(reason model.Reason) {
	codeRedemptionsTotal.WithLabelValues(string(reason)).Inc()
}

func IncCommitConflict() { codeCommitConflictsTotal.Inc() }

func IncBenefitApplyFailure(kind model.BenefitKind) {
	benefitApplyFailuresTotal.WithLabelValues(norm(string(kind))).Inc()
}
