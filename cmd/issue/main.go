// Command issue mints a batch of codes against the configured store and
// prints them one per line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"entitlement-service/internal/application"
	"entitlement-service/internal/config"
	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	kind := flag.String("kind", "subscription", "benefit kind: role | subscription")
	role := flag.String("role", model.RoleAdmin, "role granted by -kind=role")
	plan := flag.String("plan", "", "plan id granted by -kind=subscription")
	permanent := flag.Bool("permanent", false, "subscription never expires")
	days := flag.Int("days", 30, "subscription duration in days (ignored with -permanent)")
	maxUses := flag.Int("max-uses", 1, "global redemption cap, -1 for unlimited")
	perAccount := flag.Int("per-account", 1, "redemptions allowed per account")
	start := flag.String("start", "", "window start, RFC3339 (default: now for promotions)")
	end := flag.String("end", "", "window end, RFC3339 (required for promotions)")
	count := flag.Int("count", 1, "number of codes to mint")
	by := flag.String("by", os.Getenv("USER"), "issuer recorded on the codes")
	desc := flag.String("desc", "", "free-text description")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fail("config: %v", err)
	}
	logger := logging.New(cfg.Log, false)

	req := model.IssueRequest{
		MaxUses:           *maxUses,
		MaxUsesPerAccount: *perAccount,
		Description:       *desc,
		Count:             *count,
		CreatedBy:         *by,
	}
	switch *kind {
	case "role":
		req.Benefit, err = model.NewRoleBenefit(*role)
	case "subscription":
		d := *days
		if *permanent {
			d = 0
		}
		req.Benefit, err = model.NewSubscriptionBenefit(*plan, *permanent, d)
	default:
		err = fmt.Errorf("unknown -kind %q", *kind)
	}
	if err != nil {
		fail("benefit: %v", err)
	}
	if req.Window, err = parseWindow(*start, *end); err != nil {
		fail("window: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c, err := application.Build(ctx, cfg, logger)
	if err != nil {
		fail("build: %v", err)
	}
	codes, err := c.Admin.Issue(ctx, req)
	_ = c.Close(context.Background())
	for _, code := range codes {
		fmt.Println(code.Code)
	}
	if err != nil {
		if errors.Is(err, domain.ErrIssueIncomplete) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			os.Exit(2)
		}
		fail("issue: %v", err)
	}
}

func parseWindow(start, end string) (*model.EventWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	w := &model.EventWindow{}
	for _, f := range []struct {
		in  string
		out **time.Time
	}{{start, &w.Start}, {end, &w.End}} {
		if f.in == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.in)
		if err != nil {
			return nil, err
		}
		*f.out = &t
	}
	return w, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
