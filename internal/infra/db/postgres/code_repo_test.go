//go:build integration

package postgres

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
)

func newCode(code string, maxUses int) *model.Code {
	now := time.Now().UTC().Truncate(time.Microsecond)
	end := now.Add(24 * time.Hour)
	return &model.Code{
		Code:              code,
		Class:             model.CodeClassPromotion,
		CreatedAt:         now,
		CreatedBy:         "admin-1",
		Window:            &model.EventWindow{Start: &now, End: &end},
		Benefit:           model.Benefit{Kind: model.BenefitSubscriptionGrant, PlanID: "pro", DurationDays: 30},
		MaxUses:           maxUses,
		MaxUsesPerAccount: 1,
		Active:            true,
		UpdatedAt:         now,
	}
}

func TestCodeRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)

	t.Run("should create, find and reject a duplicate code", func(t *testing.T) {
		cleanup(t)
		c := newCode("PRM-AAA-AAA", 5)
		if err := repo.Create(ctx, repository.NoTX, c); err != nil {
			t.Fatalf("Failed to create code: %v", err)
		}
		if err := repo.Create(ctx, repository.NoTX, c); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("Expected ErrAlreadyExists, got %v", err)
		}
		got, err := repo.GetByCode(ctx, repository.NoTX, c.Code)
		if err != nil {
			t.Fatalf("Failed to find code: %v", err)
		}
		if got.Benefit != c.Benefit || got.Class != c.Class || got.MaxUses != 5 {
			t.Errorf("Round trip mismatch: %+v", got)
		}
		if got.Window == nil || !got.Window.End.Equal(*c.Window.End) {
			t.Errorf("Expected window end %v, got %+v", c.Window.End, got.Window)
		}
	})

	t.Run("should keep an open window as nil", func(t *testing.T) {
		cleanup(t)
		c := newCode("ADM-AAA-AAA", 1)
		c.Class = model.CodeClassAdmin
		c.Window = nil
		c.Benefit = model.Benefit{Kind: model.BenefitRoleGrant, Role: model.RoleAdmin}
		if err := repo.Create(ctx, repository.NoTX, c); err != nil {
			t.Fatalf("Failed to create code: %v", err)
		}
		got, err := repo.GetByCode(ctx, repository.NoTX, c.Code)
		if err != nil {
			t.Fatalf("Failed to find code: %v", err)
		}
		if got.Window != nil {
			t.Errorf("Expected nil window, got %+v", got.Window)
		}
	})

	t.Run("should return ErrNotFound for a missing code", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.GetByCode(ctx, repository.NoTX, "PRM-ZZZ-ZZZ"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := repo.ConditionalIncrement(ctx, repository.NoTX, "PRM-ZZZ-ZZZ"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := repo.SetActive(ctx, repository.NoTX, "PRM-ZZZ-ZZZ", false); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should guard the increment on remaining capacity and the active flag", func(t *testing.T) {
		cleanup(t)
		c := newCode("PRM-BBB-BBB", 2)
		_ = repo.Create(ctx, repository.NoTX, c)

		for i := 0; i < 2; i++ {
			if err := repo.ConditionalIncrement(ctx, repository.NoTX, c.Code); err != nil {
				t.Fatalf("Expected increment %d to succeed, got %v", i+1, err)
			}
		}
		if err := repo.ConditionalIncrement(ctx, repository.NoTX, c.Code); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Expected ErrConflict for exhausted code, got %v", err)
		}

		open := newCode("PRM-BCB-BCB", model.UnlimitedUses)
		_ = repo.Create(ctx, repository.NoTX, open)
		if err := repo.ConditionalIncrement(ctx, repository.NoTX, open.Code); err != nil {
			t.Fatalf("Expected unlimited increment to succeed, got %v", err)
		}
		if err := repo.SetActive(ctx, repository.NoTX, open.Code, false); err != nil {
			t.Fatalf("Failed to deactivate: %v", err)
		}
		if err := repo.ConditionalIncrement(ctx, repository.NoTX, open.Code); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Expected ErrConflict for inactive code, got %v", err)
		}
		got, _ := repo.GetByCode(ctx, repository.NoTX, open.Code)
		if got.CurrentUses != 1 || got.Active {
			t.Errorf("Expected 1 use and inactive, got %d/%v", got.CurrentUses, got.Active)
		}
	})

	t.Run("should never exceed max_uses under concurrent increments", func(t *testing.T) {
		cleanup(t)
		c := newCode("PRM-CCC-CCC", 3)
		_ = repo.Create(ctx, repository.NoTX, c)

		var wg sync.WaitGroup
		var wins int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.ConditionalIncrement(ctx, repository.NoTX, c.Code); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 3 {
			t.Errorf("Expected exactly 3 winners, got %d", wins)
		}
	})

	t.Run("should filter active codes", func(t *testing.T) {
		cleanup(t)
		for _, code := range []string{"PRM-DDD-DDD", "PRM-EEE-EEE", "PRM-FFF-FFF"} {
			_ = repo.Create(ctx, repository.NoTX, newCode(code, 1))
		}
		_ = repo.SetActive(ctx, repository.NoTX, "PRM-EEE-EEE", false)

		got, err := repo.ListWhere(ctx, repository.NoTX, model.CodeFilter{ActiveOnly: true, Class: model.CodeClassPromotion})
		if err != nil {
			t.Fatalf("ListWhere failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Expected 2 active codes, got %d", len(got))
		}
		limited, _ := repo.ListWhere(ctx, repository.NoTX, model.CodeFilter{Limit: 1})
		if len(limited) != 1 {
			t.Errorf("Expected limit to apply, got %d", len(limited))
		}
	})
}

func TestRedemptionCommit_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	codes := NewCodeRepo(testPool)
	ledger := NewRedemptionRepo(testPool)
	txm := NewTxManager(testPool)

	t.Run("should reject a second record in the same slot and roll back the increment", func(t *testing.T) {
		cleanup(t)
		c := newCode("PRM-GGG-GGG", 5)
		_ = codes.Create(ctx, repository.NoTX, c)
		now := time.Now().UTC()

		first := model.NewRedemptionRecord(c, "acct-1", 1, now)
		if err := txm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := codes.ConditionalIncrement(ctx, tx, c.Code); err != nil {
				return err
			}
			return ledger.Append(ctx, tx, first)
		}); err != nil {
			t.Fatalf("First commit failed: %v", err)
		}

		second := model.NewRedemptionRecord(c, "acct-1", 1, now.Add(time.Millisecond))
		err := txm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := codes.ConditionalIncrement(ctx, tx, c.Code); err != nil {
				return err
			}
			return ledger.Append(ctx, tx, second)
		})
		if !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("Expected ErrDuplicate, got %v", err)
		}

		got, _ := codes.GetByCode(ctx, repository.NoTX, c.Code)
		if got.CurrentUses != 1 {
			t.Errorf("Expected rollback to keep 1 use, got %d", got.CurrentUses)
		}
		recs, err := ledger.ListByAccountAndCode(ctx, repository.NoTX, "acct-1", c.Code)
		if err != nil || len(recs) != 1 || recs[0].ID != first.ID {
			t.Errorf("Expected only the first record, got %v (%v)", recs, err)
		}
		if recs[0].BenefitApplied != c.Benefit {
			t.Errorf("Benefit snapshot mismatch: %+v", recs[0].BenefitApplied)
		}
	})

	t.Run("should reject a foreign exec context", func(t *testing.T) {
		if _, err := codes.GetByCode(ctx, "not-a-tx", "PRM-GGG-GGG"); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Errorf("Expected ErrInvalidExecContext, got %v", err)
		}
	})
}

func TestAccountRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewAccountRepo(testPool)

	t.Run("should grant a role once", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 2; i++ {
			if err := repo.GrantRole(ctx, repository.NoTX, "acct-1", model.RoleAdmin); err != nil {
				t.Fatalf("GrantRole failed: %v", err)
			}
		}
		a, err := repo.FindByID(ctx, repository.NoTX, "acct-1")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if len(a.Roles) != 1 || !a.HasRole(model.RoleAdmin) {
			t.Errorf("Expected single admin role, got %v", a.Roles)
		}
	})

	t.Run("should upsert subscription grants by id", func(t *testing.T) {
		cleanup(t)
		start := time.Now().UTC().Truncate(time.Microsecond)
		exp := start.Add(30 * 24 * time.Hour)
		g := &model.SubscriptionGrant{
			ID: "01J0000000000000000000TEST", AccountID: "acct-2", PlanID: "pro",
			SourceCode: "PRM-HHH-HHH", StartAt: start, ExpiresAt: &exp,
		}
		for i := 0; i < 2; i++ {
			if err := repo.GrantSubscription(ctx, repository.NoTX, g); err != nil {
				t.Fatalf("GrantSubscription failed: %v", err)
			}
		}
		subs, err := repo.ListSubscriptions(ctx, repository.NoTX, "acct-2")
		if err != nil {
			t.Fatalf("ListSubscriptions failed: %v", err)
		}
		if len(subs) != 1 || subs[0].ExpiresAt == nil || !subs[0].ExpiresAt.Equal(exp) {
			t.Errorf("Expected one timed grant, got %+v", subs)
		}
		if _, err := repo.FindByID(ctx, repository.NoTX, "acct-missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
