package memstore

import (
	"context"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type RedemptionRepo struct{ s *Store }

var _ repository.RedemptionRepository = (*RedemptionRepo)(nil)

func NewRedemptionRepo(s *Store) *RedemptionRepo { return &RedemptionRepo{s: s} }

func (r *RedemptionRepo) Append(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error {
	t, err := asTxn(tx)
	if err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := slotKey{code: rec.Code, account: rec.AccountID, seq: rec.Seq}
	if _, taken := r.s.slots[key]; taken {
		return domain.ErrDuplicate
	}
	cp := *rec
	r.s.slots[key] = struct{}{}
	r.s.ledger = append(r.s.ledger, &cp)
	t.onRollback(func() {
		delete(r.s.slots, key)
		for i, x := range r.s.ledger {
			if x == &cp {
				r.s.ledger = append(r.s.ledger[:i], r.s.ledger[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (r *RedemptionRepo) ListByAccountAndCode(ctx context.Context, tx repository.Tx, accountID, code string) ([]*model.RedemptionRecord, error) {
	return r.list(tx, func(x *model.RedemptionRecord) bool {
		return x.AccountID == accountID && x.Code == code
	})
}

func (r *RedemptionRepo) ListByCode(ctx context.Context, tx repository.Tx, code string) ([]*model.RedemptionRecord, error) {
	return r.list(tx, func(x *model.RedemptionRecord) bool { return x.Code == code })
}

func (r *RedemptionRepo) list(tx repository.Tx, match func(*model.RedemptionRecord) bool) ([]*model.RedemptionRecord, error) {
	if _, err := asTxn(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.RedemptionRecord
	for _, x := range r.s.ledger {
		if match(x) {
			cp := *x
			out = append(out, &cp)
		}
	}
	sortRecords(out)
	return out, nil
}
