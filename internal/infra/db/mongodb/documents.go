package mongodb

import (
	"time"

	"entitlement-service/internal/domain/model"
)

type benefitDoc struct {
	Kind         string `bson:"kind"`
	Role         string `bson:"role,omitempty"`
	PlanID       string `bson:"plan_id,omitempty"`
	Permanent    bool   `bson:"permanent,omitempty"`
	DurationDays int    `bson:"duration_days,omitempty"`
}

func toBenefitDoc(b model.Benefit) benefitDoc {
	return benefitDoc{
		Kind:         string(b.Kind),
		Role:         b.Role,
		PlanID:       b.PlanID,
		Permanent:    b.Permanent,
		DurationDays: b.DurationDays,
	}
}

func (d benefitDoc) model() model.Benefit {
	return model.Benefit{
		Kind:         model.BenefitKind(d.Kind),
		Role:         d.Role,
		PlanID:       d.PlanID,
		Permanent:    d.Permanent,
		DurationDays: d.DurationDays,
	}
}

type codeDoc struct {
	ID                string     `bson:"_id"`
	Class             string     `bson:"class"`
	CreatedAt         time.Time  `bson:"created_at"`
	CreatedBy         string     `bson:"created_by"`
	WindowStart       *time.Time `bson:"window_start,omitempty"`
	WindowEnd         *time.Time `bson:"window_end,omitempty"`
	Benefit           benefitDoc `bson:"benefit"`
	MaxUses           int        `bson:"max_uses"`
	MaxUsesPerAccount int        `bson:"max_uses_per_account"`
	CurrentUses       int        `bson:"current_uses"`
	Active            bool       `bson:"active"`
	Description       string     `bson:"description,omitempty"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func toCodeDoc(c *model.Code) codeDoc {
	d := codeDoc{
		ID:                c.Code,
		Class:             string(c.Class),
		CreatedAt:         c.CreatedAt.UTC(),
		CreatedBy:         c.CreatedBy,
		Benefit:           toBenefitDoc(c.Benefit),
		MaxUses:           c.MaxUses,
		MaxUsesPerAccount: c.MaxUsesPerAccount,
		CurrentUses:       c.CurrentUses,
		Active:            c.Active,
		Description:       c.Description,
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
	if c.Window != nil {
		d.WindowStart = c.Window.Start
		d.WindowEnd = c.Window.End
	}
	return d
}

func (d *codeDoc) model() *model.Code {
	c := &model.Code{
		Code:              d.ID,
		Class:             model.CodeClass(d.Class),
		CreatedAt:         d.CreatedAt,
		CreatedBy:         d.CreatedBy,
		Benefit:           d.Benefit.model(),
		MaxUses:           d.MaxUses,
		MaxUsesPerAccount: d.MaxUsesPerAccount,
		CurrentUses:       d.CurrentUses,
		Active:            d.Active,
		Description:       d.Description,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.WindowStart != nil || d.WindowEnd != nil {
		c.Window = &model.EventWindow{Start: d.WindowStart, End: d.WindowEnd}
	}
	return c
}

type redemptionDoc struct {
	ID         string     `bson:"_id"`
	Code       string     `bson:"code"`
	AccountID  string     `bson:"account_id"`
	Seq        int        `bson:"seq"`
	RedeemedAt time.Time  `bson:"redeemed_at"`
	Benefit    benefitDoc `bson:"benefit"`
}

func toRedemptionDoc(r *model.RedemptionRecord) redemptionDoc {
	return redemptionDoc{
		ID:         r.ID,
		Code:       r.Code,
		AccountID:  r.AccountID,
		Seq:        r.Seq,
		RedeemedAt: r.RedeemedAt.UTC(),
		Benefit:    toBenefitDoc(r.BenefitApplied),
	}
}

func (d *redemptionDoc) model() *model.RedemptionRecord {
	return &model.RedemptionRecord{
		ID:             d.ID,
		Code:           d.Code,
		AccountID:      d.AccountID,
		Seq:            d.Seq,
		RedeemedAt:     d.RedeemedAt,
		BenefitApplied: d.Benefit.model(),
	}
}

type accountDoc struct {
	ID        string    `bson:"_id"`
	Roles     []string  `bson:"roles"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type grantDoc struct {
	ID         string     `bson:"_id"`
	AccountID  string     `bson:"account_id"`
	PlanID     string     `bson:"plan_id"`
	SourceCode string     `bson:"source_code"`
	Permanent  bool       `bson:"permanent"`
	StartAt    time.Time  `bson:"start_at"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"`
}

func toGrantDoc(g *model.SubscriptionGrant) grantDoc {
	return grantDoc{
		ID:         g.ID,
		AccountID:  g.AccountID,
		PlanID:     g.PlanID,
		SourceCode: g.SourceCode,
		Permanent:  g.Permanent,
		StartAt:    g.StartAt.UTC(),
		ExpiresAt:  g.ExpiresAt,
	}
}

func (d *grantDoc) model() *model.SubscriptionGrant {
	return &model.SubscriptionGrant{
		ID:         d.ID,
		AccountID:  d.AccountID,
		PlanID:     d.PlanID,
		SourceCode: d.SourceCode,
		Permanent:  d.Permanent,
		StartAt:    d.StartAt,
		ExpiresAt:  d.ExpiresAt,
	}
}
