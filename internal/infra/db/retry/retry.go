// Package retry wraps the repository ports so transient store failures are
// retried with exponential backoff. Anything not marked domain.ErrTransient is
// returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/metrics"
)

// Policy bounds how long one call may keep retrying.
type Policy struct {
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxElapsed > 0 {
		b.MaxElapsedTime = p.MaxElapsed
	} else {
		b.MaxElapsedTime = 3 * time.Second
	}
	return backoff.WithContext(b, ctx)
}

type retrier struct {
	policy Policy
	log    *zerolog.Logger
}

func (r retrier) do(ctx context.Context, tx repository.Tx, op string, fn func() error) error {
	// Inside a transaction the handle is poisoned after a failure; the whole
	// transaction is retried by TxManager instead.
	if tx != nil {
		return fn()
	}
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}
		metrics.IncStoreRetry(op)
		r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient store failure, retrying")
		return err
	}, r.policy.newBackOff(ctx))
}

func newRetrier(p Policy, logger *zerolog.Logger) retrier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return retrier{policy: p, log: logger}
}

// ---- CodeRepository ----

type CodeRepo struct {
	next repository.CodeRepository
	r    retrier
}

var _ repository.CodeRepository = (*CodeRepo)(nil)

func NewCodeRepo(next repository.CodeRepository, p Policy, logger *zerolog.Logger) *CodeRepo {
	return &CodeRepo{next: next, r: newRetrier(p, logger)}
}

func (c *CodeRepo) Create(ctx context.Context, tx repository.Tx, code *model.Code) error {
	return c.r.do(ctx, tx, "code_create", func() error { return c.next.Create(ctx, tx, code) })
}

func (c *CodeRepo) GetByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	var out *model.Code
	err := c.r.do(ctx, tx, "code_get", func() error {
		var err error
		out, err = c.next.GetByCode(ctx, tx, code)
		return err
	})
	return out, err
}

func (c *CodeRepo) ListWhere(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, error) {
	var out []*model.Code
	err := c.r.do(ctx, tx, "code_list", func() error {
		var err error
		out, err = c.next.ListWhere(ctx, tx, f)
		return err
	})
	return out, err
}

func (c *CodeRepo) ConditionalIncrement(ctx context.Context, tx repository.Tx, code string) error {
	return c.r.do(ctx, tx, "code_increment", func() error { return c.next.ConditionalIncrement(ctx, tx, code) })
}

func (c *CodeRepo) SetActive(ctx context.Context, tx repository.Tx, code string, active bool) error {
	return c.r.do(ctx, tx, "code_set_active", func() error { return c.next.SetActive(ctx, tx, code, active) })
}

// ---- RedemptionRepository ----

type RedemptionRepo struct {
	next repository.RedemptionRepository
	r    retrier
}

var _ repository.RedemptionRepository = (*RedemptionRepo)(nil)

func NewRedemptionRepo(next repository.RedemptionRepository, p Policy, logger *zerolog.Logger) *RedemptionRepo {
	return &RedemptionRepo{next: next, r: newRetrier(p, logger)}
}

func (l *RedemptionRepo) Append(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error {
	return l.r.do(ctx, tx, "ledger_append", func() error { return l.next.Append(ctx, tx, rec) })
}

func (l *RedemptionRepo) ListByAccountAndCode(ctx context.Context, tx repository.Tx, accountID, code string) ([]*model.RedemptionRecord, error) {
	var out []*model.RedemptionRecord
	err := l.r.do(ctx, tx, "ledger_list_account", func() error {
		var err error
		out, err = l.next.ListByAccountAndCode(ctx, tx, accountID, code)
		return err
	})
	return out, err
}

func (l *RedemptionRepo) ListByCode(ctx context.Context, tx repository.Tx, code string) ([]*model.RedemptionRecord, error) {
	var out []*model.RedemptionRecord
	err := l.r.do(ctx, tx, "ledger_list_code", func() error {
		var err error
		out, err = l.next.ListByCode(ctx, tx, code)
		return err
	})
	return out, err
}

// ---- AccountRepository ----

type AccountRepo struct {
	next repository.AccountRepository
	r    retrier
}

var _ repository.AccountRepository = (*AccountRepo)(nil)

func NewAccountRepo(next repository.AccountRepository, p Policy, logger *zerolog.Logger) *AccountRepo {
	return &AccountRepo{next: next, r: newRetrier(p, logger)}
}

func (a *AccountRepo) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	return a.r.do(ctx, tx, "grant_role", func() error { return a.next.GrantRole(ctx, tx, accountID, role) })
}

func (a *AccountRepo) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	return a.r.do(ctx, tx, "grant_subscription", func() error { return a.next.GrantSubscription(ctx, tx, g) })
}

func (a *AccountRepo) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	var out *model.Account
	err := a.r.do(ctx, tx, "account_get", func() error {
		var err error
		out, err = a.next.FindByID(ctx, tx, accountID)
		return err
	})
	return out, err
}

func (a *AccountRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	var out []*model.SubscriptionGrant
	err := a.r.do(ctx, tx, "subscription_list", func() error {
		var err error
		out, err = a.next.ListSubscriptions(ctx, tx, accountID)
		return err
	})
	return out, err
}

// ---- TransactionManager ----

// TxManager re-runs the whole transaction when it fails transiently
// (serialization failures, dropped connections, mongo TransientTransactionError).
type TxManager struct {
	next repository.TransactionManager
	r    retrier
}

var _ repository.TransactionManager = (*TxManager)(nil)

func NewTxManager(next repository.TransactionManager, p Policy, logger *zerolog.Logger) *TxManager {
	return &TxManager{next: next, r: newRetrier(p, logger)}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return m.r.do(ctx, repository.NoTX, "tx", func() error { return m.next.WithTx(ctx, fn) })
}
