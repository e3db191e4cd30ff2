// Command demo runs the racing-redemption scenarios against the in-memory store
// and prints what each account got.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"entitlement-service/internal/application"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/infra/db/memstore"
	"entitlement-service/internal/infra/ratelimit"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/usecase"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())

	stores := application.MemoryStores(memstore.New())
	benefits := usecase.NewBenefitApplier(stores.Accounts)
	limiters := usecase.Limiters{
		PerCode:    ratelimit.NewMemory(ratelimit.Policy{}, clk),
		PerAccount: ratelimit.NewMemory(ratelimit.Policy{MaxFailures: 20}, clk),
	}
	redeem := usecase.NewRedeemUseCase(stores.Codes, stores.Ledger, stores.Tx, benefits, limiters, clk,
		usecase.RedeemOptions{Dev: true}, &logger)
	admin := usecase.NewCodeAdminUseCase(stores.Codes, stores.Ledger, benefits, nil, 0, clk, &logger)

	issue := func(maxUses int, window *model.EventWindow) string {
		b, _ := model.NewSubscriptionBenefit("pro", false, 30)
		codes, err := admin.Issue(ctx, model.IssueRequest{
			Benefit: b, Window: window, MaxUses: maxUses, Count: 1, CreatedBy: "demo",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue: %v\n", err)
			os.Exit(1)
		}
		return codes[0].Code
	}
	end := clk.Now().Add(24 * time.Hour)

	// A: two accounts race for the only use.
	code := issue(1, &model.EventWindow{End: &end})
	fmt.Printf("Scenario A: %s (max_uses=1)\n", code)
	var wg sync.WaitGroup
	for _, acct := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(acct string) {
			defer wg.Done()
			out, err := redeem.Redeem(ctx, code, acct)
			if err != nil {
				fmt.Printf("  %-6s error: %v\n", acct, err)
				return
			}
			fmt.Printf("  %-6s %s\n", acct, out.Result.Reason)
		}(acct)
	}
	wg.Wait()

	// B: unlimited code, one use per account.
	code = issue(model.UnlimitedUses, &model.EventWindow{End: &end})
	fmt.Printf("Scenario B: %s (unlimited)\n", code)
	for i := 1; i <= 2; i++ {
		out, _ := redeem.Redeem(ctx, code, "carol")
		fmt.Printf("  carol  attempt %d: %s\n", i, out.Result.Reason)
	}

	// C: scheduled code becomes redeemable once the clock passes start.
	start := clk.Now().Add(time.Hour)
	code = issue(10, &model.EventWindow{Start: &start, End: &end})
	fmt.Printf("Scenario C: %s (starts in 1h)\n", code)
	out, _ := redeem.Redeem(ctx, code, "dave")
	fmt.Printf("  now:      %s\n", out.Result.Reason)
	clk.Add(time.Hour + time.Second)
	out, _ = redeem.Redeem(ctx, code, "dave")
	fmt.Printf("  +1h:      %s\n", out.Result.Reason)

	// D: five failures trip the limiter.
	fmt.Println("Scenario D: PRM-ZZZ-ZZZ (never issued)")
	for i := 1; i <= 6; i++ {
		out, _ := redeem.Redeem(ctx, "PRM-ZZZ-ZZZ", "eve")
		line := string(out.Result.PublicReason())
		if out.Result.RetryAfter > 0 {
			line += fmt.Sprintf(" (retry after %s)", out.Result.RetryAfter)
		}
		fmt.Printf("  attempt %d: %s\n", i, line)
	}
}
