package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

var _ repository.RedemptionRepository = (*redemptionRepo)(nil)

type redemptionRepo struct {
	pool *pgxpool.Pool
}

func NewRedemptionRepo(pool *pgxpool.Pool) repository.RedemptionRepository {
	return &redemptionRepo{pool: pool}
}

const redemptionColumns = `id, code, account_id, seq, redeemed_at,
       benefit_kind, benefit_role, benefit_plan_id, benefit_permanent, benefit_duration_days`

func (r *redemptionRepo) Append(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error {
	const q = `
INSERT INTO redemptions (` + redemptionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	b := rec.BenefitApplied
	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.Code, rec.AccountID, rec.Seq, rec.RedeemedAt,
		string(b.Kind), b.Role, b.PlanID, b.Permanent, b.DurationDays,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *redemptionRepo) ListByAccountAndCode(ctx context.Context, tx repository.Tx, accountID, code string) ([]*model.RedemptionRecord, error) {
	const q = `SELECT ` + redemptionColumns + `
  FROM redemptions
 WHERE code = $1 AND account_id = $2
 ORDER BY redeemed_at, id;`
	return r.list(ctx, tx, q, code, accountID)
}

func (r *redemptionRepo) ListByCode(ctx context.Context, tx repository.Tx, code string) ([]*model.RedemptionRecord, error) {
	const q = `SELECT ` + redemptionColumns + `
  FROM redemptions
 WHERE code = $1
 ORDER BY redeemed_at, id;`
	return r.list(ctx, tx, q, code)
}

func (r *redemptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.RedemptionRecord, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RedemptionRecord
	for rows.Next() {
		var (
			rec  model.RedemptionRecord
			kind string
		)
		b := &rec.BenefitApplied
		if err := rows.Scan(
			&rec.ID, &rec.Code, &rec.AccountID, &rec.Seq, &rec.RedeemedAt,
			&kind, &b.Role, &b.PlanID, &b.Permanent, &b.DurationDays,
		); err != nil {
			return nil, mapErr(err)
		}
		b.Kind = model.BenefitKind(kind)
		out = append(out, &rec)
	}
	return out, mapErr(rows.Err())
}
