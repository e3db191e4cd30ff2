package repository

import (
	"context"

	"entitlement-service/internal/domain/model"
)

// RedemptionRepository is the per-account ledger of successful redemptions.
type RedemptionRepository interface {
	// Append writes an immutable record. Returns domain.ErrDuplicate when the
	// (code, account, seq) slot is already occupied.
	Append(ctx context.Context, tx Tx, rec *model.RedemptionRecord) error
	// ListByAccountAndCode returns the account's records for one code, oldest first.
	ListByAccountAndCode(ctx context.Context, tx Tx, accountID, code string) ([]*model.RedemptionRecord, error)
	// ListByCode returns every record for a code, oldest first (admin audit).
	ListByCode(ctx context.Context, tx Tx, code string) ([]*model.RedemptionRecord, error)
}
