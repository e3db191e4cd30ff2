package repository

import (
	"context"

	"entitlement-service/internal/domain/model"
)

// AccountRepository applies benefits to accounts. Both grant operations are idempotent
// so a benefit may be applied more than once after a committed redemption.
type AccountRepository interface {
	// GrantRole adds role to the account's role set, creating the account if needed.
	GrantRole(ctx context.Context, tx Tx, accountID, role string) error
	// GrantSubscription upserts the grant keyed by its ID.
	GrantSubscription(ctx context.Context, tx Tx, grant *model.SubscriptionGrant) error
	FindByID(ctx context.Context, tx Tx, accountID string) (*model.Account, error)
	ListSubscriptions(ctx context.Context, tx Tx, accountID string) ([]*model.SubscriptionGrant, error)
}
