// File: internal/usecase/redeem_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/logging"
	"entitlement-service/internal/infra/metrics"
	"entitlement-service/internal/pkg/clock"
)

// RedeemUseCase is the end-user entry point for codes.
type RedeemUseCase interface {
	// Redeem validates and atomically consumes one use of code for accountID.
	// Expected rejections come back as an outcome with Success=false and a nil error;
	// only infrastructure failures produce an error.
	Redeem(ctx context.Context, code, accountID string) (model.RedemptionOutcome, error)

	// Check runs the same validation without mutating anything.
	Check(ctx context.Context, code, accountID string) (model.ValidationResult, error)
}

// Limiters are consulted before each attempt. PerAccount guards guessing across
// many codes and may be nil.
type Limiters struct {
	PerCode    adapter.RateLimiter
	PerAccount adapter.RateLimiter
}

type RedeemOptions struct {
	MaxCommitAttempts int
	BenefitTimeout    time.Duration
	Dev               bool // log codes unredacted

	// CommitBackoff is the first pause after a ledger-slot collision; later pauses
	// grow exponentially with jitter.
	CommitBackoff time.Duration

	// Pending receives records whose benefit failed inline. Optional.
	Pending adapter.BenefitQueue
}

var _ RedeemUseCase = (*redeemUC)(nil)

type redeemUC struct {
	codes    repository.CodeRepository
	ledger   repository.RedemptionRepository
	tx       repository.TransactionManager
	benefits *BenefitApplier
	limiters Limiters
	clock    clock.Clock
	opts     RedeemOptions
	log      *zerolog.Logger
}

func NewRedeemUseCase(
	codes repository.CodeRepository,
	ledger repository.RedemptionRepository,
	tx repository.TransactionManager,
	benefits *BenefitApplier,
	limiters Limiters,
	clk clock.Clock,
	opts RedeemOptions,
	logger *zerolog.Logger,
) RedeemUseCase {
	if opts.MaxCommitAttempts <= 0 {
		opts.MaxCommitAttempts = 8
	}
	if opts.CommitBackoff <= 0 {
		opts.CommitBackoff = 5 * time.Millisecond
	}
	if opts.BenefitTimeout <= 0 {
		opts.BenefitTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &redeemUC{
		codes:    codes,
		ledger:   ledger,
		tx:       tx,
		benefits: benefits,
		limiters: limiters,
		clock:    clk,
		opts:     opts,
		log:      logger,
	}
}

func (uc *redeemUC) Redeem(ctx context.Context, input, accountID string) (model.RedemptionOutcome, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return model.RedemptionOutcome{}, domain.ErrInvalidArgument
	}
	code := NormalizeCode(input)
	l := logging.With(ctx, uc.log).With().Str("code", logging.Redact(code, uc.opts.Dev)).Logger()
	defer logging.TraceDuration(&l, "RedeemUC.Redeem")()

	keys := newLimiterKeys(accountID, code)
	if res, blocked := uc.precheck(ctx, keys, &l); blocked {
		metrics.IncRedemption(res.Reason)
		l.Info().Dur("retry_after", res.RetryAfter).Msg("redemption throttled")
		return model.Failed(res), nil
	}

	if !ValidFormat(code) {
		return uc.reject(ctx, keys, model.Reject(model.ReasonInvalidFormat), &l), nil
	}

	var pause backoff.BackOff
	for attempt := 1; ; attempt++ {
		rec, prior, err := uc.load(ctx, code, accountID)
		if err != nil {
			return model.RedemptionOutcome{}, err
		}
		now := uc.clock.Now()
		res := Validate(code, rec, now, accountID, prior)
		if !res.Valid() {
			return uc.reject(ctx, keys, res, &l), nil
		}

		seq := model.CountRedemptions(prior, accountID, rec.Code) + 1
		record := model.NewRedemptionRecord(rec, accountID, seq, now)
		err = uc.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.codes.ConditionalIncrement(ctx, tx, rec.Code); err != nil {
				return err
			}
			return uc.ledger.Append(ctx, tx, record)
		})
		switch {
		case err == nil:
			return uc.complete(ctx, keys, res, record, &l)
		case errors.Is(err, domain.ErrConflict):
			// Exhausted or deactivated since the read; re-validation names the reason.
			metrics.IncCommitConflict()
			l.Debug().Int("attempt", attempt).Msg("code changed before commit")
			if attempt >= uc.opts.MaxCommitAttempts {
				return model.RedemptionOutcome{}, domain.ErrCommitContention
			}
		case errors.Is(err, domain.ErrDuplicate):
			// A concurrent request of the same account took this ledger slot.
			metrics.IncCommitConflict()
			l.Debug().Int("attempt", attempt).Int("seq", seq).Msg("ledger slot taken")
			if attempt >= uc.opts.MaxCommitAttempts {
				return model.RedemptionOutcome{}, domain.ErrCommitContention
			}
			if pause == nil {
				pause = uc.newCommitBackOff(ctx)
			}
			if err := wait(ctx, pause); err != nil {
				return model.RedemptionOutcome{}, err
			}
		default:
			return model.RedemptionOutcome{}, fmt.Errorf("commit redemption: %w", err)
		}
	}
}

func (uc *redeemUC) newCommitBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = uc.opts.CommitBackoff
	b.MaxInterval = 20 * uc.opts.CommitBackoff
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0 // the attempt budget bounds the loop
	return backoff.WithContext(b, ctx)
}

func wait(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (uc *redeemUC) Check(ctx context.Context, input, accountID string) (model.ValidationResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return model.ValidationResult{}, domain.ErrInvalidArgument
	}
	code := NormalizeCode(input)
	l := logging.With(ctx, uc.log)
	if res, blocked := uc.precheck(ctx, newLimiterKeys(accountID, code), l); blocked {
		return res, nil
	}
	if !ValidFormat(code) {
		return model.Reject(model.ReasonInvalidFormat), nil
	}
	rec, prior, err := uc.load(ctx, code, accountID)
	if err != nil {
		return model.ValidationResult{}, err
	}
	return Validate(code, rec, uc.clock.Now(), accountID, prior), nil
}

// load fetches the code and, if it exists, the account's ledger for it.
// A missing code is returned as (nil, nil, nil).
func (uc *redeemUC) load(ctx context.Context, code, accountID string) (*model.Code, []*model.RedemptionRecord, error) {
	rec, err := uc.codes.GetByCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load code: %w", err)
	}
	prior, err := uc.ledger.ListByAccountAndCode(ctx, repository.NoTX, accountID, rec.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("load redemptions: %w", err)
	}
	return rec, prior, nil
}

func (uc *redeemUC) complete(ctx context.Context, keys limiterKeys, res model.ValidationResult, record *model.RedemptionRecord, l *zerolog.Logger) (model.RedemptionOutcome, error) {
	out := model.RedemptionOutcome{Success: true, Result: res, Record: record}
	metrics.IncRedemption(model.ReasonValid)
	uc.record(ctx, keys, adapter.OutcomeSuccess, l)

	// The commit is durable now; client cancellation must not stop the grant.
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.BenefitTimeout)
	defer cancel()
	if err := uc.benefits.Apply(applyCtx, record); err != nil {
		metrics.IncBenefitApplyFailure(record.BenefitApplied.Kind)
		l.Error().Err(err).Str("redemption_id", record.ID).Msg("benefit application failed after commit")
		if uc.opts.Pending != nil {
			if qerr := uc.opts.Pending.Enqueue(applyCtx, record); qerr != nil {
				l.Warn().Err(qerr).Str("redemption_id", record.ID).Msg("could not queue benefit retry")
			}
		}
		return out, fmt.Errorf("%w: redemption %s: %v", domain.ErrBenefitPending, record.ID, err)
	}

	l.Info().
		Str("redemption_id", record.ID).
		Str("benefit", string(record.BenefitApplied.Kind)).
		Int("seq", record.Seq).
		Msg("code redeemed")
	return out, nil
}

func (uc *redeemUC) reject(ctx context.Context, keys limiterKeys, res model.ValidationResult, l *zerolog.Logger) model.RedemptionOutcome {
	metrics.IncRedemption(res.Reason)
	uc.record(ctx, keys, adapter.OutcomeFailure, l)
	l.Info().Str("reason", string(res.Reason)).Msg("redemption rejected")
	return model.Failed(res)
}

type limiterKeys struct {
	perCode    string
	perAccount string
}

func newLimiterKeys(accountID, code string) limiterKeys {
	return limiterKeys{
		perCode:    "redeem:" + accountID + ":" + code,
		perAccount: "redeem:" + accountID + ":*",
	}
}

// precheck asks both limiters; the longest wait wins. Limiter errors fail open.
func (uc *redeemUC) precheck(ctx context.Context, keys limiterKeys, l *zerolog.Logger) (model.ValidationResult, bool) {
	var wait time.Duration
	blocked := false
	check := func(lim adapter.RateLimiter, key, scope string) {
		if lim == nil {
			return
		}
		d, err := lim.Check(ctx, key)
		if err != nil {
			l.Warn().Err(err).Str("scope", scope).Msg("rate limiter check failed")
			return
		}
		if !d.Allowed {
			blocked = true
			metrics.IncRateLimitBlock(scope)
			if d.RetryAfter > wait {
				wait = d.RetryAfter
			}
		}
	}
	check(uc.limiters.PerCode, keys.perCode, "code")
	check(uc.limiters.PerAccount, keys.perAccount, "account")
	if !blocked {
		return model.ValidationResult{}, false
	}
	if wait <= 0 {
		wait = time.Second
	}
	return model.RateLimited(wait), true
}

func (uc *redeemUC) record(ctx context.Context, keys limiterKeys, outcome adapter.Outcome, l *zerolog.Logger) {
	if lim := uc.limiters.PerCode; lim != nil {
		if err := lim.Record(ctx, keys.perCode, outcome); err != nil {
			l.Warn().Err(err).Msg("rate limiter record failed")
		}
	}
	if lim := uc.limiters.PerAccount; lim != nil {
		if err := lim.Record(ctx, keys.perAccount, outcome); err != nil {
			l.Warn().Err(err).Msg("rate limiter record failed")
		}
	}
}
