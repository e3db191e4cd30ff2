// Package memstore is a process-local implementation of the repository ports.
// It backs the demo binary and the unit tests; it honours the same conditional
// write and uniqueness contracts as the durable stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type slotKey struct {
	code    string
	account string
	seq     int
}

// Store holds every table behind one mutex. Transactions are serialized by txMu
// and undone on error.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	codes    map[string]*model.Code
	ledger   []*model.RedemptionRecord
	slots    map[slotKey]struct{}
	accounts map[string]*model.Account
	grants   map[string]*model.SubscriptionGrant

	now func() time.Time
}

func New() *Store {
	return &Store{
		codes:    map[string]*model.Code{},
		slots:    map[slotKey]struct{}{},
		accounts: map[string]*model.Account{},
		grants:   map[string]*model.SubscriptionGrant{},
		now:      time.Now,
	}
}

// txn collects undo steps for the writes made inside WithTx.
type txn struct {
	undo []func()
}

func (t *txn) onRollback(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

func asTxn(tx repository.Tx) (*txn, error) {
	if tx == nil {
		return nil, nil
	}
	t, ok := tx.(*txn)
	if !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return t, nil
}

// TxManager implements repository.TransactionManager over a Store.
type TxManager struct{ s *Store }

var _ repository.TransactionManager = (*TxManager)(nil)

func NewTxManager(s *Store) *TxManager { return &TxManager{s: s} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	t := &txn{}
	if err := fn(ctx, t); err != nil {
		m.s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

func cloneCode(c *model.Code) *model.Code {
	cp := *c
	if c.Window != nil {
		w := *c.Window
		cp.Window = &w
	}
	return &cp
}

func sortRecords(recs []*model.RedemptionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].RedeemedAt.Equal(recs[j].RedeemedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].RedeemedAt.Before(recs[j].RedeemedAt)
	})
}
