package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// RedemptionRecord is the immutable proof that an account redeemed a code.
// Seq is the per-account ledger slot (1..MaxUsesPerAccount); the store keeps
// (Code, AccountID, Seq) unique, so two racing redemptions cannot share a slot.
type RedemptionRecord struct {
	ID             string
	Code           string
	AccountID      string
	Seq            int
	RedeemedAt     time.Time
	BenefitApplied Benefit
}

// NewRedemptionRecord stamps a record with a time-ordered ULID.
func NewRedemptionRecord(code *Code, accountID string, seq int, now time.Time) *RedemptionRecord {
	return &RedemptionRecord{
		ID:             ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Code:           code.Code,
		AccountID:      accountID,
		Seq:            seq,
		RedeemedAt:     now,
		BenefitApplied: code.Benefit,
	}
}

// CountRedemptions counts the records in prior that belong to (accountID, code).
func CountRedemptions(prior []*RedemptionRecord, accountID, code string) int {
	n := 0
	for _, r := range prior {
		if r != nil && r.AccountID == accountID && r.Code == code {
			n++
		}
	}
	return n
}
