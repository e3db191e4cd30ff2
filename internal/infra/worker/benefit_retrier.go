package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/infra/metrics"
)

// Applier grants the benefit of one ledger record.
type Applier interface {
	Apply(ctx context.Context, rec *model.RedemptionRecord) error
}

type RetrierOptions struct {
	InitialInterval time.Duration
	MaxElapsed      time.Duration // per record; 0 means 2m
}

var _ adapter.BenefitQueue = (*BenefitRetrier)(nil)

// BenefitRetrier re-applies benefits that failed right after a committed
// redemption. Grants are idempotent so a retry after a partial success is safe.
// Records that still fail after MaxElapsed stay pending until an operator
// calls the admin reapply endpoint.
type BenefitRetrier struct {
	pool    *Pool
	applier Applier
	opts    RetrierOptions
	log     *zerolog.Logger
}

func NewBenefitRetrier(pool *Pool, applier Applier, opts RetrierOptions, logger *zerolog.Logger) *BenefitRetrier {
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 2 * time.Minute
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "BenefitRetrier").Logger()
	return &BenefitRetrier{pool: pool, applier: applier, opts: opts, log: &l}
}

// Enqueue does not block. The record is copied so the caller may reuse it.
func (r *BenefitRetrier) Enqueue(_ context.Context, rec *model.RedemptionRecord) error {
	if rec == nil {
		return domain.ErrInvalidArgument
	}
	cp := *rec
	if err := r.pool.Submit(func(ctx context.Context) error { return r.retry(ctx, &cp) }); err != nil {
		metrics.IncBenefitRetry("dropped")
		return err
	}
	metrics.IncBenefitRetry("queued")
	return nil
}

func (r *BenefitRetrier) retry(ctx context.Context, rec *model.RedemptionRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxElapsedTime = r.opts.MaxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := r.applier.Apply(ctx, rec)
		if errors.Is(err, domain.ErrUnknownBenefit) || errors.Is(err, domain.ErrInvalidArgument) {
			return backoff.Permanent(err)
		}
		if err != nil {
			r.log.Debug().Err(err).Str("redemption_id", rec.ID).Int("attempt", attempt).Msg("benefit retry failed")
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		metrics.IncBenefitRetry("failed")
		r.log.Error().Err(err).
			Str("redemption_id", rec.ID).
			Str("account_id", rec.AccountID).
			Int("attempts", attempt).
			Msg("benefit still pending, reapply required")
		return err
	}
	metrics.IncBenefitRetry("applied")
	r.log.Info().Str("redemption_id", rec.ID).Int("attempts", attempt).Msg("pending benefit applied")
	return nil
}
