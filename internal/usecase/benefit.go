package usecase

import (
	"context"
	"fmt"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

// BenefitApplier grants the benefit recorded on a redemption. Grants are
// idempotent, so applying the same record twice is harmless.
type BenefitApplier struct {
	accounts repository.AccountRepository
}

func NewBenefitApplier(accounts repository.AccountRepository) *BenefitApplier {
	return &BenefitApplier{accounts: accounts}
}

func (a *BenefitApplier) Apply(ctx context.Context, rec *model.RedemptionRecord) error {
	if rec == nil {
		return domain.ErrInvalidArgument
	}
	switch rec.BenefitApplied.Kind {
	case model.BenefitRoleGrant:
		if err := a.accounts.GrantRole(ctx, repository.NoTX, rec.AccountID, rec.BenefitApplied.Role); err != nil {
			return fmt.Errorf("grant role %q: %w", rec.BenefitApplied.Role, err)
		}
		return nil
	case model.BenefitSubscriptionGrant:
		grant, err := model.NewSubscriptionGrant(rec)
		if err != nil {
			return err
		}
		if err := a.accounts.GrantSubscription(ctx, repository.NoTX, grant); err != nil {
			return fmt.Errorf("grant subscription %q: %w", grant.PlanID, err)
		}
		return nil
	default:
		return domain.ErrUnknownBenefit
	}
}
