package memstore

import (
	"context"
	"sort"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type CodeRepo struct{ s *Store }

var _ repository.CodeRepository = (*CodeRepo)(nil)

func NewCodeRepo(s *Store) *CodeRepo { return &CodeRepo{s: s} }

func (r *CodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return domain.ErrInvalidArgument
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.codes[c.Code]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.codes[c.Code] = cloneCode(c)
	t.onRollback(func() { delete(r.s.codes, c.Code) })
	return nil
}

func (r *CodeRepo) GetByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	if _, err := asTxn(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(c), nil
}

func (r *CodeRepo) ListWhere(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, error) {
	if _, err := asTxn(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Code, 0, len(r.s.codes))
	for _, c := range r.s.codes {
		if f.ActiveOnly && !c.Active {
			continue
		}
		if f.Class != "" && c.Class != f.Class {
			continue
		}
		if f.CreatedBy != "" && c.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, cloneCode(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *CodeRepo) ConditionalIncrement(ctx context.Context, tx repository.Tx, code string) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[code]
	if !ok {
		return domain.ErrNotFound
	}
	if !c.Active || c.Exhausted() {
		return domain.ErrConflict
	}
	prevUpdated := c.UpdatedAt
	c.CurrentUses++
	c.UpdatedAt = r.s.now()
	t.onRollback(func() {
		c.CurrentUses--
		c.UpdatedAt = prevUpdated
	})
	return nil
}

func (r *CodeRepo) SetActive(ctx context.Context, tx repository.Tx, code string, active bool) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[code]
	if !ok {
		return domain.ErrNotFound
	}
	prev, prevUpdated := c.Active, c.UpdatedAt
	c.Active = active
	c.UpdatedAt = r.s.now()
	t.onRollback(func() {
		c.Active = prev
		c.UpdatedAt = prevUpdated
	})
	return nil
}
