package model

import (
	"fmt"

	"entitlement-service/internal/domain"
)

// MaxIssueBatch caps how many codes one issue request may mint.
const MaxIssueBatch = 100

// IssueRequest describes a batch of codes an admin wants minted.
type IssueRequest struct {
	Benefit           Benefit
	Window            *EventWindow
	MaxUses           int
	MaxUsesPerAccount int // 0 means the default of 1
	Description       string
	Count             int
	CreatedBy         string
}

func (r IssueRequest) Validate() error {
	if err := r.Benefit.Validate(); err != nil {
		return fmt.Errorf("benefit: %w", err)
	}
	if r.Count < 1 || r.Count > MaxIssueBatch {
		return fmt.Errorf("count must be 1..%d: %w", MaxIssueBatch, domain.ErrInvalidArgument)
	}
	if r.MaxUses != UnlimitedUses && r.MaxUses < 1 {
		return fmt.Errorf("max_uses must be -1 or positive: %w", domain.ErrInvalidArgument)
	}
	if r.MaxUsesPerAccount < 0 {
		return fmt.Errorf("max_uses_per_account must not be negative: %w", domain.ErrInvalidArgument)
	}
	if r.MaxUses != UnlimitedUses && r.MaxUsesPerAccount > r.MaxUses {
		return fmt.Errorf("max_uses_per_account exceeds max_uses: %w", domain.ErrInvalidArgument)
	}
	if err := r.Window.validate(); err != nil {
		return fmt.Errorf("event window start must precede end: %w", err)
	}
	if ClassForBenefit(r.Benefit) == CodeClassPromotion && (r.Window == nil || r.Window.End == nil) {
		return fmt.Errorf("promotion codes need an event window end: %w", domain.ErrInvalidArgument)
	}
	return nil
}
