package usecase

import (
	"time"

	"entitlement-service/internal/domain/model"
)

// Validate decides whether accountID may redeem input right now. It is pure:
// code is the stored record (nil when none exists) and prior is the account's
// ledger for that code. Rules are checked in order and the first match wins.
func Validate(input string, code *model.Code, now time.Time, accountID string, prior []*model.RedemptionRecord) model.ValidationResult {
	if !ValidFormat(NormalizeCode(input)) {
		return model.Reject(model.ReasonInvalidFormat)
	}
	if code.IsZero() {
		return model.Reject(model.ReasonNotFound)
	}
	if !code.Active {
		return model.Reject(model.ReasonDeactivated)
	}
	if code.Window.NotYetActive(now) {
		return model.Reject(model.ReasonNotYetActive)
	}
	if code.Window.Expired(now) {
		return model.Reject(model.ReasonExpired)
	}
	if code.Exhausted() {
		return model.Reject(model.ReasonGlobalLimitReached)
	}

	perAccount := code.MaxUsesPerAccount
	if perAccount <= 0 {
		perAccount = 1
	}
	if model.CountRedemptions(prior, accountID, code.Code) >= perAccount {
		return model.Reject(model.ReasonAlreadyRedeemed)
	}
	return model.Accept(code.Benefit)
}
