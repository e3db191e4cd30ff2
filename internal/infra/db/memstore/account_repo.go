package memstore

import (
	"context"
	"sort"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type AccountRepo struct{ s *Store }

var _ repository.AccountRepository = (*AccountRepo)(nil)

func NewAccountRepo(s *Store) *AccountRepo { return &AccountRepo{s: s} }

func (r *AccountRepo) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	if accountID == "" || role == "" {
		return domain.ErrInvalidArgument
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		a = &model.Account{ID: accountID}
		r.s.accounts[accountID] = a
		t.onRollback(func() { delete(r.s.accounts, accountID) })
	}
	if a.AddRole(role) {
		t.onRollback(func() { a.Roles = a.Roles[:len(a.Roles)-1] })
	}
	return nil
}

func (r *AccountRepo) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	if g == nil || g.ID == "" || g.AccountID == "" {
		return domain.ErrInvalidArgument
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.grants[g.ID]; ok {
		return nil
	}
	cp := *g
	r.s.grants[g.ID] = &cp
	t.onRollback(func() { delete(r.s.grants, g.ID) })
	if _, ok := r.s.accounts[g.AccountID]; !ok {
		r.s.accounts[g.AccountID] = &model.Account{ID: g.AccountID, UpdatedAt: r.s.now()}
		t.onRollback(func() { delete(r.s.accounts, g.AccountID) })
	}
	return nil
}

func (r *AccountRepo) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	if _, err := asTxn(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	cp.Roles = append([]string(nil), a.Roles...)
	return &cp, nil
}

func (r *AccountRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	if _, err := asTxn(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.SubscriptionGrant
	for _, g := range r.s.grants {
		if g.AccountID == accountID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}
