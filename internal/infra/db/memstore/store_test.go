//go:build !integration

package memstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/db/memstore"
)

func seedCode(t *testing.T, repo *memstore.CodeRepo, code string, maxUses int) {
	t.Helper()
	c := &model.Code{
		Code:              code,
		Class:             model.CodeClassAdmin,
		Benefit:           model.Benefit{Kind: model.BenefitRoleGrant, Role: model.RoleAdmin},
		MaxUses:           maxUses,
		MaxUsesPerAccount: 1,
		Active:            true,
		CreatedAt:         time.Now(),
	}
	if err := repo.Create(context.Background(), repository.NoTX, c); err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func TestCodeRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject a duplicate code string", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())
		seedCode(t, repo, "ADM-AAA-BBB", 1)

		err := repo.Create(ctx, repository.NoTX, &model.Code{Code: "ADM-AAA-BBB"})

		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should increment while capacity remains", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())
		seedCode(t, repo, "ADM-AAA-BBB", 2)

		for i := 0; i < 2; i++ {
			if err := repo.ConditionalIncrement(ctx, repository.NoTX, "ADM-AAA-BBB"); err != nil {
				t.Fatalf("increment %d: unexpected error: %v", i+1, err)
			}
		}
		// cap reached
		if err := repo.ConditionalIncrement(ctx, repository.NoTX, "ADM-AAA-BBB"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict at cap, got %v", err)
		}
		c, _ := repo.GetByCode(ctx, repository.NoTX, "ADM-AAA-BBB")
		if c.CurrentUses != 2 {
			t.Errorf("expected 2 uses, got %d", c.CurrentUses)
		}
	})

	t.Run("should never exhaust an unlimited code", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())
		seedCode(t, repo, "ADM-AAA-BBB", model.UnlimitedUses)

		for i := 0; i < 25; i++ {
			if err := repo.ConditionalIncrement(ctx, repository.NoTX, "ADM-AAA-BBB"); err != nil {
				t.Fatalf("increment %d: unexpected error: %v", i+1, err)
			}
		}
	})

	t.Run("should report a missing code", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())

		err := repo.ConditionalIncrement(ctx, repository.NoTX, "ADM-ZZZ-ZZZ")

		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should refuse increments on a deactivated code", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())
		seedCode(t, repo, "ADM-AAA-BBB", model.UnlimitedUses)
		if err := repo.SetActive(ctx, repository.NoTX, "ADM-AAA-BBB", false); err != nil {
			t.Fatal(err)
		}

		err := repo.ConditionalIncrement(ctx, repository.NoTX, "ADM-AAA-BBB")

		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("should hand out copies", func(t *testing.T) {
		repo := memstore.NewCodeRepo(memstore.New())
		seedCode(t, repo, "ADM-AAA-BBB", 1)

		c, _ := repo.GetByCode(ctx, repository.NoTX, "ADM-AAA-BBB")
		c.CurrentUses = 99
		again, _ := repo.GetByCode(ctx, repository.NoTX, "ADM-AAA-BBB")

		if again.CurrentUses != 0 {
			t.Errorf("store was mutated through a returned pointer")
		}
	})
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	s := memstore.New()
	codes := memstore.NewCodeRepo(s)
	ledger := memstore.NewRedemptionRepo(s)
	tm := memstore.NewTxManager(s)
	seedCode(t, codes, "ADM-AAA-BBB", 5)
	taken := &model.RedemptionRecord{ID: "r1", Code: "ADM-AAA-BBB", AccountID: "acct", Seq: 1, RedeemedAt: time.Now()}
	if err := ledger.Append(ctx, repository.NoTX, taken); err != nil {
		t.Fatal(err)
	}

	// --- Act ---
	err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := codes.ConditionalIncrement(ctx, tx, "ADM-AAA-BBB"); err != nil {
			return err
		}
		return ledger.Append(ctx, tx, &model.RedemptionRecord{ID: "r2", Code: "ADM-AAA-BBB", AccountID: "acct", Seq: 1})
	})

	// --- Assert ---
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	c, _ := codes.GetByCode(ctx, repository.NoTX, "ADM-AAA-BBB")
	if c.CurrentUses != 0 {
		t.Errorf("increment was not rolled back: current_uses=%d", c.CurrentUses)
	}
	recs, _ := ledger.ListByCode(ctx, repository.NoTX, "ADM-AAA-BBB")
	if len(recs) != 1 {
		t.Errorf("expected 1 ledger record, got %d", len(recs))
	}
}

func TestCodeRepo_ConcurrentIncrementsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	codes := memstore.NewCodeRepo(s)
	seedCode(t, codes, "PRM-AAA-BBB", 10)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := codes.ConditionalIncrement(ctx, repository.NoTX, "PRM-AAA-BBB"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 10 {
		t.Errorf("expected exactly 10 successful increments, got %d", got)
	}
}

func TestAccountRepo_GrantsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memstore.NewAccountRepo(memstore.New())
	g := &model.SubscriptionGrant{ID: "r1", AccountID: "acct", PlanID: "pro", Permanent: true, StartAt: time.Now()}

	for i := 0; i < 2; i++ {
		if err := repo.GrantRole(ctx, repository.NoTX, "acct", model.RoleAdmin); err != nil {
			t.Fatal(err)
		}
		if err := repo.GrantSubscription(ctx, repository.NoTX, g); err != nil {
			t.Fatal(err)
		}
	}

	a, err := repo.FindByID(ctx, repository.NoTX, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Roles) != 1 {
		t.Errorf("expected one role, got %v", a.Roles)
	}
	subs, _ := repo.ListSubscriptions(ctx, repository.NoTX, "acct")
	if len(subs) != 1 {
		t.Errorf("expected one grant, got %d", len(subs))
	}
}
