package model

import (
	"time"

	"entitlement-service/internal/domain"
)

// SubscriptionGrant is a paid-tier entitlement handed out by a promotion code.
// ID equals the redemption record ID, which makes re-applying the same grant a no-op.
type SubscriptionGrant struct {
	ID         string
	AccountID  string
	PlanID     string
	SourceCode string
	Permanent  bool
	StartAt    time.Time
	ExpiresAt  *time.Time // nil for permanent grants
}

// NewSubscriptionGrant derives the grant a redemption record entitles its account to.
func NewSubscriptionGrant(rec *RedemptionRecord) (*SubscriptionGrant, error) {
	if rec == nil || rec.ID == "" || rec.AccountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	b := rec.BenefitApplied
	if b.Kind != BenefitSubscriptionGrant {
		return nil, domain.ErrInvalidArgument
	}
	g := &SubscriptionGrant{
		ID:         rec.ID,
		AccountID:  rec.AccountID,
		PlanID:     b.PlanID,
		SourceCode: rec.Code,
		Permanent:  b.Permanent,
		StartAt:    rec.RedeemedAt,
	}
	if !b.Permanent {
		ex := rec.RedeemedAt.Add(time.Duration(b.DurationDays) * 24 * time.Hour)
		g.ExpiresAt = &ex
	}
	return g, nil
}

// ActiveAt reports whether the grant entitles its account at t.
func (g *SubscriptionGrant) ActiveAt(t time.Time) bool {
	if t.Before(g.StartAt) {
		return false
	}
	return g.ExpiresAt == nil || t.Before(*g.ExpiresAt)
}
