package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/logging"
	"entitlement-service/internal/infra/metrics"
	"entitlement-service/internal/pkg/clock"
)

// CodeAdminUseCase defines the operations privileged accounts use to manage codes.
// Callers authenticate and authorize before invoking it.
type CodeAdminUseCase interface {
	// Issue mints req.Count codes. On partial failure it returns the codes that were
	// created together with an error wrapping domain.ErrIssueIncomplete.
	Issue(ctx context.Context, req model.IssueRequest) ([]*model.Code, error)

	// Deactivate flips the manual kill switch off. Returns domain.ErrNotFound if missing.
	Deactivate(ctx context.Context, code string) error

	// Reactivate undoes Deactivate.
	Reactivate(ctx context.Context, code string) error

	// ListActive returns codes that are redeemable right now (derived status "active").
	ListActive(ctx context.Context) ([]*model.Code, error)

	// Get returns a code and its full redemption ledger.
	Get(ctx context.Context, code string) (*model.Code, []*model.RedemptionRecord, error)

	// ReapplyBenefits re-grants the benefit of every ledger record of a code.
	// Grants are idempotent; this repairs redemptions whose grant failed after commit.
	ReapplyBenefits(ctx context.Context, code string) (int, error)
}

var _ CodeAdminUseCase = (*codeAdminUC)(nil)

type codeAdminUC struct {
	codes            repository.CodeRepository
	ledger           repository.RedemptionRepository
	benefits         *BenefitApplier
	generate         CodeGenerator
	collisionRetries int
	clock            clock.Clock
	log              *zerolog.Logger
}

// NewCodeAdminUseCase constructs the admin use case. generate and clk may be nil
// (GenerateCode and the real clock are used).
func NewCodeAdminUseCase(
	codes repository.CodeRepository,
	ledger repository.RedemptionRepository,
	benefits *BenefitApplier,
	generate CodeGenerator,
	collisionRetries int,
	clk clock.Clock,
	logger *zerolog.Logger,
) CodeAdminUseCase {
	if generate == nil {
		generate = GenerateCode
	}
	if collisionRetries <= 0 {
		collisionRetries = 5
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &codeAdminUC{
		codes:            codes,
		ledger:           ledger,
		benefits:         benefits,
		generate:         generate,
		collisionRetries: collisionRetries,
		clock:            clk,
		log:              logger,
	}
}

func (uc *codeAdminUC) Issue(ctx context.Context, req model.IssueRequest) ([]*model.Code, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	l := logging.With(ctx, uc.log)
	class := model.ClassForBenefit(req.Benefit)
	now := uc.clock.Now()

	out := make([]*model.Code, 0, req.Count)
	var failed int
	var lastErr error
	for i := 0; i < req.Count; i++ {
		c, err := uc.issueOne(ctx, class, req, now)
		if err != nil {
			failed++
			lastErr = err
			l.Warn().Err(err).Int("item", i).Msg("code issuance failed")
			continue
		}
		out = append(out, c)
	}
	metrics.AddCodesIssued(class, len(out))
	l.Info().
		Str("class", string(class)).
		Str("created_by", req.CreatedBy).
		Int("issued", len(out)).
		Int("failed", failed).
		Msg("codes issued")

	if failed > 0 {
		return out, fmt.Errorf("%w: %d of %d failed: %v", domain.ErrIssueIncomplete, failed, req.Count, lastErr)
	}
	return out, nil
}

// issueOne retries generation only on primary-key collisions, up to collisionRetries times.
func (uc *codeAdminUC) issueOne(ctx context.Context, class model.CodeClass, req model.IssueRequest, now time.Time) (*model.Code, error) {
	for attempt := 1; attempt <= uc.collisionRetries; attempt++ {
		s, err := uc.generate(class)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		c, err := model.NewCode(s, req, now)
		if err != nil {
			return nil, err
		}
		err = uc.codes.Create(ctx, repository.NoTX, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("create code: %w", err)
		}
	}
	return nil, fmt.Errorf("no free code after %d attempts: %w", uc.collisionRetries, domain.ErrAlreadyExists)
}

func (uc *codeAdminUC) Deactivate(ctx context.Context, code string) error {
	return uc.setActive(ctx, code, false)
}

func (uc *codeAdminUC) Reactivate(ctx context.Context, code string) error {
	return uc.setActive(ctx, code, true)
}

func (uc *codeAdminUC) setActive(ctx context.Context, input string, active bool) error {
	code := NormalizeCode(input)
	if !ValidFormat(code) {
		return domain.ErrInvalidArgument
	}
	if err := uc.codes.SetActive(ctx, repository.NoTX, code, active); err != nil {
		return err
	}
	logging.With(ctx, uc.log).Info().Str("code", code).Bool("active", active).Msg("code active flag changed")
	return nil
}

func (uc *codeAdminUC) ListActive(ctx context.Context) ([]*model.Code, error) {
	all, err := uc.codes.ListWhere(ctx, repository.NoTX, model.CodeFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	now := uc.clock.Now()
	out := make([]*model.Code, 0, len(all))
	for _, c := range all {
		if c.Status(now) == model.CodeStatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (uc *codeAdminUC) Get(ctx context.Context, input string) (*model.Code, []*model.RedemptionRecord, error) {
	code := NormalizeCode(input)
	if !ValidFormat(code) {
		return nil, nil, domain.ErrInvalidArgument
	}
	c, err := uc.codes.GetByCode(ctx, repository.NoTX, code)
	if err != nil {
		return nil, nil, err
	}
	recs, err := uc.ledger.ListByCode(ctx, repository.NoTX, code)
	if err != nil {
		return nil, nil, err
	}
	return c, recs, nil
}

func (uc *codeAdminUC) ReapplyBenefits(ctx context.Context, input string) (int, error) {
	_, recs, err := uc.Get(ctx, input)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, r := range recs {
		if err := uc.benefits.Apply(ctx, r); err != nil {
			return applied, fmt.Errorf("reapply %s: %w", r.ID, err)
		}
		applied++
	}
	return applied, nil
}
