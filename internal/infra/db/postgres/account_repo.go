package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) repository.AccountRepository {
	return &accountRepo{pool: pool}
}

// GrantRole upserts the account and adds role to its set if it is missing.
func (r *accountRepo) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	const q = `
INSERT INTO accounts (id, roles, updated_at)
VALUES ($1, ARRAY[$2]::text[], NOW())
ON CONFLICT (id) DO UPDATE SET
  roles = CASE WHEN $2 = ANY(accounts.roles) THEN accounts.roles
               ELSE array_append(accounts.roles, $2) END,
  updated_at = NOW();
`
	_, err := execSQL(ctx, r.pool, tx, q, accountID, role)
	return err
}

// GrantSubscription is keyed by grant ID; replays are ignored.
func (r *accountRepo) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	const ensureAccount = `
INSERT INTO accounts (id, roles, updated_at) VALUES ($1, '{}', NOW())
ON CONFLICT (id) DO NOTHING;
`
	if _, err := execSQL(ctx, r.pool, tx, ensureAccount, g.AccountID); err != nil {
		return err
	}
	const q = `
INSERT INTO subscription_grants (id, account_id, plan_id, source_code, permanent, start_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		g.ID, g.AccountID, g.PlanID, g.SourceCode, g.Permanent, g.StartAt, g.ExpiresAt,
	)
	return err
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, roles, updated_at FROM accounts WHERE id = $1;`, accountID)
	if err != nil {
		return nil, err
	}
	var a model.Account
	if err := row.Scan(&a.ID, &a.Roles, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *accountRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	const q = `
SELECT id, account_id, plan_id, source_code, permanent, start_at, expires_at
  FROM subscription_grants
 WHERE account_id = $1
 ORDER BY start_at;
`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SubscriptionGrant
	for rows.Next() {
		var g model.SubscriptionGrant
		if err := rows.Scan(&g.ID, &g.AccountID, &g.PlanID, &g.SourceCode, &g.Permanent, &g.StartAt, &g.ExpiresAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &g)
	}
	return out, mapErr(rows.Err())
}
