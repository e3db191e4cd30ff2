//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/db/memstore"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================
//
// Each mock delegates to a shared memstore.Store unless the matching Func is set,
// so tests get real conditional-write semantics and can still inject failures.

// ---- Mock CodeRepository ----

type MockCodeRepo struct {
	inner *memstore.CodeRepo
	calls atomic.Int32

	CreateFunc               func(ctx context.Context, tx repository.Tx, c *model.Code) error
	GetByCodeFunc            func(ctx context.Context, tx repository.Tx, code string) (*model.Code, error)
	ConditionalIncrementFunc func(ctx context.Context, tx repository.Tx, code string) error
}

var _ repository.CodeRepository = (*MockCodeRepo)(nil)

func NewMockCodeRepo(s *memstore.Store) *MockCodeRepo {
	return &MockCodeRepo{inner: memstore.NewCodeRepo(s)}
}

// Calls reports how many times any method was invoked.
func (r *MockCodeRepo) Calls() int { return int(r.calls.Load()) }

func (r *MockCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	r.calls.Add(1)
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, c)
	}
	return r.inner.Create(ctx, tx, c)
}

func (r *MockCodeRepo) GetByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	r.calls.Add(1)
	if r.GetByCodeFunc != nil {
		return r.GetByCodeFunc(ctx, tx, code)
	}
	return r.inner.GetByCode(ctx, tx, code)
}

func (r *MockCodeRepo) ListWhere(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, error) {
	r.calls.Add(1)
	return r.inner.ListWhere(ctx, tx, f)
}

func (r *MockCodeRepo) ConditionalIncrement(ctx context.Context, tx repository.Tx, code string) error {
	r.calls.Add(1)
	if r.ConditionalIncrementFunc != nil {
		return r.ConditionalIncrementFunc(ctx, tx, code)
	}
	return r.inner.ConditionalIncrement(ctx, tx, code)
}

func (r *MockCodeRepo) SetActive(ctx context.Context, tx repository.Tx, code string, active bool) error {
	r.calls.Add(1)
	return r.inner.SetActive(ctx, tx, code, active)
}

// ---- Mock RedemptionRepository ----

type MockLedger struct {
	inner *memstore.RedemptionRepo
	calls atomic.Int32

	AppendFunc func(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error
}

var _ repository.RedemptionRepository = (*MockLedger)(nil)

func NewMockLedger(s *memstore.Store) *MockLedger {
	return &MockLedger{inner: memstore.NewRedemptionRepo(s)}
}

func (r *MockLedger) Calls() int { return int(r.calls.Load()) }

func (r *MockLedger) Append(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error {
	r.calls.Add(1)
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, tx, rec)
	}
	return r.inner.Append(ctx, tx, rec)
}

func (r *MockLedger) ListByAccountAndCode(ctx context.Context, tx repository.Tx, accountID, code string) ([]*model.RedemptionRecord, error) {
	r.calls.Add(1)
	return r.inner.ListByAccountAndCode(ctx, tx, accountID, code)
}

func (r *MockLedger) ListByCode(ctx context.Context, tx repository.Tx, code string) ([]*model.RedemptionRecord, error) {
	r.calls.Add(1)
	return r.inner.ListByCode(ctx, tx, code)
}

// ---- Mock AccountRepository ----

type MockAccountRepo struct {
	inner *memstore.AccountRepo

	GrantRoleFunc         func(ctx context.Context, tx repository.Tx, accountID, role string) error
	GrantSubscriptionFunc func(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo(s *memstore.Store) *MockAccountRepo {
	return &MockAccountRepo{inner: memstore.NewAccountRepo(s)}
}

func (r *MockAccountRepo) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	if r.GrantRoleFunc != nil {
		return r.GrantRoleFunc(ctx, tx, accountID, role)
	}
	return r.inner.GrantRole(ctx, tx, accountID, role)
}

func (r *MockAccountRepo) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	if r.GrantSubscriptionFunc != nil {
		return r.GrantSubscriptionFunc(ctx, tx, g)
	}
	return r.inner.GrantSubscription(ctx, tx, g)
}

func (r *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	return r.inner.FindByID(ctx, tx, accountID)
}

func (r *MockAccountRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	return r.inner.ListSubscriptions(ctx, tx, accountID)
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	inner *memstore.TxManager

	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(s *memstore.Store) *MockTxManager {
	return &MockTxManager{inner: memstore.NewTxManager(s)}
}

// WithTx runs fn inside a memstore transaction unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return m.inner.WithTx(ctx, fn)
}

// =============================
// Adapters
// =============================

// ---- Mock RateLimiter ----

type MockRateLimiter struct {
	mu       sync.Mutex
	Recorded map[string][]adapter.Outcome

	CheckFunc  func(ctx context.Context, key string) (adapter.Decision, error)
	RecordFunc func(ctx context.Context, key string, outcome adapter.Outcome) error
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{Recorded: map[string][]adapter.Outcome{}}
}

func (m *MockRateLimiter) Check(ctx context.Context, key string) (adapter.Decision, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, key)
	}
	return adapter.Decision{Allowed: true}, nil
}

func (m *MockRateLimiter) Record(ctx context.Context, key string, outcome adapter.Outcome) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, key, outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded[key] = append(m.Recorded[key], outcome)
	return nil
}

func (m *MockRateLimiter) Outcomes(key string) []adapter.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.Outcome(nil), m.Recorded[key]...)
}
