package model

import "time"

// Reason classifies the outcome of validating or redeeming a code.
type Reason string

const (
	ReasonValid              Reason = "VALID"
	ReasonInvalidFormat      Reason = "INVALID_FORMAT"
	ReasonNotFound           Reason = "NOT_FOUND"
	ReasonDeactivated        Reason = "DEACTIVATED"
	ReasonNotYetActive       Reason = "NOT_YET_ACTIVE"
	ReasonExpired            Reason = "EXPIRED"
	ReasonGlobalLimitReached Reason = "GLOBAL_LIMIT_REACHED"
	ReasonAlreadyRedeemed    Reason = "ALREADY_REDEEMED"
	ReasonRateLimited        Reason = "RATE_LIMITED"

	// ReasonInvalidCode is the user-facing merge of NOT_FOUND and DEACTIVATED.
	ReasonInvalidCode Reason = "INVALID_CODE"
)

// Retryable reports whether the caller may try the same code again later.
func (r Reason) Retryable() bool { return r == ReasonRateLimited }

// ValidationResult is a classified decision. Benefit is set only when valid,
// RetryAfter only when rate limited.
type ValidationResult struct {
	Reason     Reason
	Benefit    *Benefit
	RetryAfter time.Duration
}

func (v ValidationResult) Valid() bool { return v.Reason == ReasonValid }

// PublicReason hides whether a code was never issued or has been revoked.
func (v ValidationResult) PublicReason() Reason {
	switch v.Reason {
	case ReasonNotFound, ReasonDeactivated:
		return ReasonInvalidCode
	default:
		return v.Reason
	}
}

func Reject(reason Reason) ValidationResult { return ValidationResult{Reason: reason} }

func Accept(b Benefit) ValidationResult {
	return ValidationResult{Reason: ReasonValid, Benefit: &b}
}

func RateLimited(retryAfter time.Duration) ValidationResult {
	return ValidationResult{Reason: ReasonRateLimited, RetryAfter: retryAfter}
}

// RedemptionOutcome is what Redeem hands back to the caller.
type RedemptionOutcome struct {
	Success bool
	Result  ValidationResult
	Record  *RedemptionRecord
}

func Failed(result ValidationResult) RedemptionOutcome {
	return RedemptionOutcome{Success: false, Result: result}
}
