package api

import (
	"math"
	"time"

	"entitlement-service/internal/domain/model"
)

type codeRequest struct {
	Code string `json:"code"`
}

type benefitDTO struct {
	Kind         model.BenefitKind `json:"kind"`
	Role         string            `json:"role,omitempty"`
	PlanID       string            `json:"plan_id,omitempty"`
	Permanent    bool              `json:"permanent,omitempty"`
	DurationDays int               `json:"duration_days,omitempty"`
}

func toBenefitDTO(b *model.Benefit) *benefitDTO {
	if b == nil {
		return nil
	}
	return &benefitDTO{Kind: b.Kind, Role: b.Role, PlanID: b.PlanID, Permanent: b.Permanent, DurationDays: b.DurationDays}
}

func (b benefitDTO) toModel() model.Benefit {
	return model.Benefit{Kind: b.Kind, Role: b.Role, PlanID: b.PlanID, Permanent: b.Permanent, DurationDays: b.DurationDays}
}

type windowDTO struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// redeemResponse is shared by redeem and check. Message is localized.
type redeemResponse struct {
	Success           bool         `json:"success"`
	Reason            model.Reason `json:"reason"`
	Message           string       `json:"message"`
	RetryAfterSeconds int          `json:"retry_after_seconds,omitempty"`
	Benefit           *benefitDTO  `json:"benefit,omitempty"`
	RedemptionID      string       `json:"redemption_id,omitempty"`
	Pending           bool         `json:"benefit_pending,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type issueRequest struct {
	Benefit           benefitDTO `json:"benefit"`
	Window            *windowDTO `json:"window,omitempty"`
	MaxUses           int        `json:"max_uses"`
	MaxUsesPerAccount int        `json:"max_uses_per_account,omitempty"`
	Description       string     `json:"description,omitempty"`
	Count             int        `json:"count"`
}

func (r issueRequest) toModel(createdBy string) model.IssueRequest {
	req := model.IssueRequest{
		Benefit:           r.Benefit.toModel(),
		MaxUses:           r.MaxUses,
		MaxUsesPerAccount: r.MaxUsesPerAccount,
		Description:       r.Description,
		Count:             r.Count,
		CreatedBy:         createdBy,
	}
	if r.Window != nil {
		req.Window = &model.EventWindow{Start: r.Window.Start, End: r.Window.End}
	}
	return req
}

type codeDTO struct {
	Code              string           `json:"code"`
	Class             model.CodeClass  `json:"class"`
	Status            model.CodeStatus `json:"status"`
	Benefit           *benefitDTO      `json:"benefit"`
	Window            *windowDTO       `json:"window,omitempty"`
	MaxUses           int              `json:"max_uses"`
	MaxUsesPerAccount int              `json:"max_uses_per_account"`
	CurrentUses       int              `json:"current_uses"`
	Remaining         int              `json:"remaining"`
	Active            bool             `json:"active"`
	Description       string           `json:"description,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CreatedBy         string           `json:"created_by,omitempty"`
}

func toCodeDTO(c *model.Code, now time.Time) codeDTO {
	out := codeDTO{
		Code:              c.Code,
		Class:             c.Class,
		Status:            c.Status(now),
		Benefit:           toBenefitDTO(&c.Benefit),
		MaxUses:           c.MaxUses,
		MaxUsesPerAccount: c.MaxUsesPerAccount,
		CurrentUses:       c.CurrentUses,
		Remaining:         c.Remaining(),
		Active:            c.Active,
		Description:       c.Description,
		CreatedAt:         c.CreatedAt,
		CreatedBy:         c.CreatedBy,
	}
	if c.Window != nil {
		out.Window = &windowDTO{Start: c.Window.Start, End: c.Window.End}
	}
	return out
}

func toCodeDTOs(cs []*model.Code, now time.Time) []codeDTO {
	out := make([]codeDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCodeDTO(c, now))
	}
	return out
}

type redemptionDTO struct {
	ID         string      `json:"id"`
	AccountID  string      `json:"account_id"`
	Seq        int         `json:"seq"`
	RedeemedAt time.Time   `json:"redeemed_at"`
	Benefit    *benefitDTO `json:"benefit"`
}

type subscriptionDTO struct {
	PlanID     string     `json:"plan_id"`
	SourceCode string     `json:"source_code"`
	Permanent  bool       `json:"permanent"`
	StartAt    time.Time  `json:"start_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
}

type meResponse struct {
	AccountID     string            `json:"account_id"`
	Roles         []string          `json:"roles"`
	Subscriptions []subscriptionDTO `json:"subscriptions"`
}

// retrySeconds rounds up so a client never retries before the block lifts.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
