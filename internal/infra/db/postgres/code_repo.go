package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.CodeRepository = (*codeRepo)(nil)

type codeRepo struct {
	pool *pgxpool.Pool
}

func NewCodeRepo(pool *pgxpool.Pool) repository.CodeRepository {
	return &codeRepo{pool: pool}
}

const codeColumns = `code, class, created_at, created_by, window_start, window_end,
       benefit_kind, benefit_role, benefit_plan_id, benefit_permanent, benefit_duration_days,
       max_uses, max_uses_per_account, current_uses, active, description, updated_at`

func (r *codeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	const q = `
INSERT INTO codes (` + codeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
`
	var start, end interface{}
	if c.Window != nil {
		start, end = c.Window.Start, c.Window.End
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		c.Code, string(c.Class), c.CreatedAt, c.CreatedBy, start, end,
		string(c.Benefit.Kind), c.Benefit.Role, c.Benefit.PlanID, c.Benefit.Permanent, c.Benefit.DurationDays,
		c.MaxUses, c.MaxUsesPerAccount, c.CurrentUses, c.Active, c.Description, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *codeRepo) GetByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	const q = `SELECT ` + codeColumns + ` FROM codes WHERE code = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (r *codeRepo) ListWhere(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.ActiveOnly {
		where = append(where, "active = TRUE")
	}
	if f.Class != "" {
		args = append(args, string(f.Class))
		where = append(where, fmt.Sprintf("class = $%d", len(args)))
	}
	if f.CreatedBy != "" {
		args = append(args, f.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	q := `SELECT ` + codeColumns + ` FROM codes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, code ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

// ConditionalIncrement is one guarded UPDATE. The row lock serializes racers and
// each re-evaluates the guard against the committed counter, so zero affected rows
// means exhausted, deactivated or gone.
func (r *codeRepo) ConditionalIncrement(ctx context.Context, tx repository.Tx, code string) error {
	const q = `
UPDATE codes
   SET current_uses = current_uses + 1,
       updated_at   = NOW()
 WHERE code = $1
   AND active = TRUE
   AND (max_uses = -1 OR current_uses < max_uses);
`
	tag, err := execSQL(ctx, r.pool, tx, q, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, tx, code)
	}
	return nil
}

func (r *codeRepo) SetActive(ctx context.Context, tx repository.Tx, code string, active bool) error {
	const q = `UPDATE codes SET active = $2, updated_at = NOW() WHERE code = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, code, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *codeRepo) missOrConflict(ctx context.Context, tx repository.Tx, code string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM codes WHERE code = $1);`, code)
	if err != nil {
		return err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func scanCode(row pgx.Row) (*model.Code, error) {
	var (
		c      model.Code
		class  string
		kind   string
		window model.EventWindow
	)
	err := row.Scan(
		&c.Code, &class, &c.CreatedAt, &c.CreatedBy, &window.Start, &window.End,
		&kind, &c.Benefit.Role, &c.Benefit.PlanID, &c.Benefit.Permanent, &c.Benefit.DurationDays,
		&c.MaxUses, &c.MaxUsesPerAccount, &c.CurrentUses, &c.Active, &c.Description, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Class = model.CodeClass(class)
	c.Benefit.Kind = model.BenefitKind(kind)
	if window.Start != nil || window.End != nil {
		c.Window = &window
	}
	return &c, nil
}
