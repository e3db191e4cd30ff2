package model

import (
	"strings"

	"entitlement-service/internal/domain"
)

// BenefitKind is the closed set of privileges a code can grant.
type BenefitKind string

const (
	BenefitRoleGrant         BenefitKind = "role-grant"
	BenefitSubscriptionGrant BenefitKind = "subscription-grant"
)

// Benefit is a tagged variant: Role is set for role grants, the plan fields for
// subscription grants.
type Benefit struct {
	Kind         BenefitKind
	Role         string
	PlanID       string
	Permanent    bool
	DurationDays int
}

func NewRoleBenefit(role string) (Benefit, error) {
	b := Benefit{Kind: BenefitRoleGrant, Role: strings.TrimSpace(role)}
	return b, b.Validate()
}

func NewSubscriptionBenefit(planID string, permanent bool, durationDays int) (Benefit, error) {
	b := Benefit{
		Kind:         BenefitSubscriptionGrant,
		PlanID:       strings.TrimSpace(planID),
		Permanent:    permanent,
		DurationDays: durationDays,
	}
	return b, b.Validate()
}

// Validate rejects payloads that mix fields of the two variants.
func (b Benefit) Validate() error {
	switch b.Kind {
	case BenefitRoleGrant:
		if b.Role == "" || b.PlanID != "" || b.Permanent || b.DurationDays != 0 {
			return domain.ErrInvalidArgument
		}
	case BenefitSubscriptionGrant:
		if b.PlanID == "" || b.Role != "" {
			return domain.ErrInvalidArgument
		}
		// permanent grants carry no duration, timed grants need one
		if b.Permanent == (b.DurationDays > 0) || b.DurationDays < 0 {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrUnknownBenefit
	}
	return nil
}
