package adapter

import (
	"context"

	"entitlement-service/internal/domain/model"
)

// BenefitQueue takes committed redemptions whose benefit could not be applied
// inline and keeps retrying them in the background.
type BenefitQueue interface {
	Enqueue(ctx context.Context, rec *model.RedemptionRecord) error
}
