package model

import (
	"time"

	"entitlement-service/internal/domain"
)

// UnlimitedUses is the MaxUses sentinel for codes without a global redemption cap.
const UnlimitedUses = -1

// CodeClass identifies what a code is for. It is encoded in the code prefix.
type CodeClass string

const (
	CodeClassAdmin     CodeClass = "admin"
	CodeClassPromotion CodeClass = "promotion"
)

var classPrefixes = map[CodeClass]string{
	CodeClassAdmin:     "ADM",
	CodeClassPromotion: "PRM",
}

// Prefix returns the code string prefix for the class ("" for unknown classes).
func (c CodeClass) Prefix() string { return classPrefixes[c] }

// ClassForBenefit picks the class a code granting b is issued under.
func ClassForBenefit(b Benefit) CodeClass {
	if b.Kind == BenefitRoleGrant {
		return CodeClassAdmin
	}
	return CodeClassPromotion
}

// CodeStatus is derived at read time and never stored.
type CodeStatus string

const (
	CodeStatusActive      CodeStatus = "active"
	CodeStatusDeactivated CodeStatus = "deactivated"
	CodeStatusScheduled   CodeStatus = "scheduled"
	CodeStatusExpired     CodeStatus = "expired"
	CodeStatusExhausted   CodeStatus = "exhausted"
)

// EventWindow bounds when a code may be redeemed. Either side may be open.
type EventWindow struct {
	Start *time.Time
	End   *time.Time
}

// NotYetActive reports now < Start.
func (w *EventWindow) NotYetActive(now time.Time) bool {
	return w != nil && w.Start != nil && now.Before(*w.Start)
}

// Expired reports now >= End; the end instant itself is already expired.
func (w *EventWindow) Expired(now time.Time) bool {
	return w != nil && w.End != nil && !now.Before(*w.End)
}

func (w *EventWindow) validate() error {
	if w == nil {
		return nil
	}
	if w.Start != nil && w.End != nil && !w.Start.Before(*w.End) {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Code is an issued entitlement token. The code string is the primary key.
type Code struct {
	Code              string
	Class             CodeClass
	CreatedAt         time.Time
	CreatedBy         string
	Window            *EventWindow
	Benefit           Benefit
	MaxUses           int
	MaxUsesPerAccount int
	CurrentUses       int
	Active            bool
	Description       string
	UpdatedAt         time.Time
}

func (c *Code) IsZero() bool { return c == nil || c.Code == "" }

func (c *Code) IsUnlimited() bool { return c.MaxUses == UnlimitedUses }

// Exhausted reports whether a finite global cap has been used up.
func (c *Code) Exhausted() bool {
	return !c.IsUnlimited() && c.CurrentUses >= c.MaxUses
}

// Remaining returns the number of redemptions left, or -1 when unlimited.
func (c *Code) Remaining() int {
	if c.IsUnlimited() {
		return UnlimitedUses
	}
	if r := c.MaxUses - c.CurrentUses; r > 0 {
		return r
	}
	return 0
}

// Status derives the lifecycle state from the active flag, the window and the counters.
func (c *Code) Status(now time.Time) CodeStatus {
	switch {
	case !c.Active:
		return CodeStatusDeactivated
	case c.Window.NotYetActive(now):
		return CodeStatusScheduled
	case c.Window.Expired(now):
		return CodeStatusExpired
	case c.Exhausted():
		return CodeStatusExhausted
	default:
		return CodeStatusActive
	}
}

// NewCode builds a freshly issued, active code from an issue request.
func NewCode(code string, req IssueRequest, now time.Time) (*Code, error) {
	if code == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	perAccount := req.MaxUsesPerAccount
	if perAccount == 0 {
		perAccount = 1
	}
	var window *EventWindow
	if req.Window != nil {
		w := *req.Window
		window = &w
	}
	class := ClassForBenefit(req.Benefit)
	if class == CodeClassPromotion && window.Start == nil {
		start := now
		window.Start = &start
	}
	return &Code{
		Code:              code,
		Class:             class,
		CreatedAt:         now,
		CreatedBy:         req.CreatedBy,
		Window:            window,
		Benefit:           req.Benefit,
		MaxUses:           req.MaxUses,
		MaxUsesPerAccount: perAccount,
		CurrentUses:       0,
		Active:            true,
		Description:       req.Description,
		UpdatedAt:         now,
	}, nil
}

// CodeFilter narrows ListWhere queries. Zero values mean "any".
type CodeFilter struct {
	ActiveOnly bool
	Class      CodeClass
	CreatedBy  string
	Limit      int
}
