package repository

import (
	"context"

	"entitlement-service/internal/domain/model"
)

// CodeRepository is the port for the durable table of issued codes.
type CodeRepository interface {
	// Create inserts a new code. Returns domain.ErrAlreadyExists when the code string is taken;
	// that uniqueness check is the only collision detector for generated codes.
	Create(ctx context.Context, tx Tx, code *model.Code) error
	// GetByCode returns domain.ErrNotFound when no record exists.
	GetByCode(ctx context.Context, tx Tx, code string) (*model.Code, error)
	// ListWhere returns codes matching the filter, newest first.
	ListWhere(ctx context.Context, tx Tx, filter model.CodeFilter) ([]*model.Code, error)
	// ConditionalIncrement bumps current_uses by one in a single guarded write that
	// succeeds only while the code is active and current_uses < max_uses (or max_uses is
	// unlimited). Returns domain.ErrConflict when the code is exhausted or deactivated,
	// domain.ErrNotFound when it is gone.
	ConditionalIncrement(ctx context.Context, tx Tx, code string) error
	// SetActive flips the manual kill switch. Returns domain.ErrNotFound if the code is gone.
	SetActive(ctx context.Context, tx Tx, code string, active bool) error
}
