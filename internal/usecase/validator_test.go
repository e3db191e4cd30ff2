//go:build !integration

package usecase_test

import (
	"testing"
	"time"

	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/usecase"
)

func activeCode() *model.Code {
	return &model.Code{
		Code:              "PRM-ABC-DEF",
		Class:             model.CodeClassPromotion,
		Benefit:           model.Benefit{Kind: model.BenefitSubscriptionGrant, PlanID: "pro", DurationDays: 30},
		Window:            &model.EventWindow{Start: ptrTime(baseTime.Add(-time.Hour)), End: ptrTime(baseTime.Add(time.Hour))},
		MaxUses:           10,
		MaxUsesPerAccount: 1,
		Active:            true,
	}
}

func TestValidate(t *testing.T) {
	t.Run("should accept a redeemable code and carry its benefit", func(t *testing.T) {
		res := usecase.Validate("PRM-ABC-DEF", activeCode(), baseTime, "acct", nil)

		if !res.Valid() {
			t.Fatalf("expected VALID, got %s", res.Reason)
		}
		if res.Benefit == nil || res.Benefit.PlanID != "pro" {
			t.Errorf("expected benefit to be carried, got %+v", res.Benefit)
		}
	})

	cases := []struct {
		name   string
		input  string
		mutate func(c *model.Code) *model.Code
		prior  int
		want   model.Reason
	}{
		{"bad format wins over everything", "nope", func(c *model.Code) *model.Code { c.Active = false; return c }, 5, model.ReasonInvalidFormat},
		{"missing record", "PRM-ABC-DEF", func(*model.Code) *model.Code { return nil }, 0, model.ReasonNotFound},
		{"deactivated before window checks", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.Active = false
			c.Window.End = ptrTime(baseTime.Add(-time.Minute))
			return c
		}, 0, model.ReasonDeactivated},
		{"not yet active", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.Window.Start = ptrTime(baseTime.Add(time.Minute))
			return c
		}, 0, model.ReasonNotYetActive},
		{"expired before exhaustion", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.Window.End = ptrTime(baseTime.Add(-time.Minute))
			c.CurrentUses = c.MaxUses
			return c
		}, 0, model.ReasonExpired},
		{"exhausted before per-account", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.CurrentUses = c.MaxUses
			return c
		}, 1, model.ReasonGlobalLimitReached},
		{"per-account limit", "PRM-ABC-DEF", func(c *model.Code) *model.Code { return c }, 1, model.ReasonAlreadyRedeemed},
		{"unlimited code is never exhausted", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.MaxUses = model.UnlimitedUses
			c.CurrentUses = 1_000_000
			return c
		}, 0, model.ReasonValid},
		{"per-account allowance above one", "PRM-ABC-DEF", func(c *model.Code) *model.Code {
			c.MaxUsesPerAccount = 3
			return c
		}, 2, model.ReasonValid},
	}
	for _, tc := range cases {
		t.Run("should return "+string(tc.want)+": "+tc.name, func(t *testing.T) {
			code := tc.mutate(activeCode())
			var prior []*model.RedemptionRecord
			for i := 0; i < tc.prior; i++ {
				prior = append(prior, &model.RedemptionRecord{Code: "PRM-ABC-DEF", AccountID: "acct", Seq: i + 1})
			}

			res := usecase.Validate(tc.input, code, baseTime, "acct", prior)

			if res.Reason != tc.want {
				t.Errorf("expected %s, got %s", tc.want, res.Reason)
			}
			if !res.Valid() && res.Benefit != nil {
				t.Errorf("rejections must not carry a benefit")
			}
		})
	}

	t.Run("should treat the window end instant as expired", func(t *testing.T) {
		c := activeCode()
		c.Window.End = ptrTime(baseTime)

		if got := usecase.Validate(c.Code, c, baseTime, "acct", nil).Reason; got != model.ReasonExpired {
			t.Errorf("expected EXPIRED at end, got %s", got)
		}
		if got := usecase.Validate(c.Code, c, baseTime.Add(-time.Nanosecond), "acct", nil).Reason; got != model.ReasonValid {
			t.Errorf("expected VALID just before end, got %s", got)
		}
	})

	t.Run("should treat the window start instant as active", func(t *testing.T) {
		c := activeCode()
		c.Window.Start = ptrTime(baseTime)

		if got := usecase.Validate(c.Code, c, baseTime, "acct", nil).Reason; got != model.ReasonValid {
			t.Errorf("expected VALID at start, got %s", got)
		}
	})

	t.Run("should ignore other accounts' redemptions", func(t *testing.T) {
		prior := []*model.RedemptionRecord{{Code: "PRM-ABC-DEF", AccountID: "someone-else", Seq: 1}}

		if got := usecase.Validate("PRM-ABC-DEF", activeCode(), baseTime, "acct", prior).Reason; got != model.ReasonValid {
			t.Errorf("expected VALID, got %s", got)
		}
	})

	t.Run("should be pure: identical inputs give identical results", func(t *testing.T) {
		c := activeCode()
		snapshot := *c
		prior := []*model.RedemptionRecord{{Code: c.Code, AccountID: "acct", Seq: 1}}

		first := usecase.Validate(c.Code, c, baseTime, "acct", prior)
		second := usecase.Validate(c.Code, c, baseTime, "acct", prior)

		if first.Reason != second.Reason || first.RetryAfter != second.RetryAfter {
			t.Errorf("results differ: %+v vs %+v", first, second)
		}
		if c.CurrentUses != snapshot.CurrentUses || c.Active != snapshot.Active {
			t.Errorf("Validate mutated its input")
		}
	})
}
