// Package discount implements discount rules, the per-kind pricing strategies
// and the stacking of several discounts against one cart.
package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// Kind identifies how a discount computes its value.
type Kind int

const (
	KindFixed Kind = iota + 1
	KindPercentage
	KindCoupon
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindPercentage:
		return "percentage"
	case KindCoupon:
		return "coupon"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k >= KindFixed && k <= KindCoupon
}

// ParseKind parses the lower-case name of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return KindFixed, nil
	case "percentage":
		return KindPercentage, nil
	case "coupon":
		return KindCoupon, nil
	default:
		return 0, failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "kind", Message: "unknown kind " + s})
	}
}

var hundred = decimal.NewFromInt(100)

// PercentToFraction converts a whole-number percent (15 for 15%) into the
// stored fraction (0.15).
func PercentToFraction(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// FractionToPercent is the inverse of PercentToFraction.
func FractionToPercent(fraction decimal.Decimal) decimal.Decimal {
	return fraction.Mul(hundred)
}

var (
	ErrInvalid                = failure.Validation("discount.invalid", "invalid discount")
	ErrInvalidRequest         = failure.Validation("discount.invalid_request", "invalid discount request")
	ErrNotFound               = failure.NotFound("discount.not_found", "discount not found")
	ErrNotValidForUse         = failure.Conflict("discount.not_valid_for_use", "discount is not valid for use")
	ErrMinOrderNotReached     = failure.Conflict("discount.min_order_not_reached", "minimum order amount not reached")
	ErrTooManyRecentDiscounts = failure.Conflict("discount.too_many_recent", "too many discounts received recently")
	ErrPercentageTooHigh      = failure.Conflict("discount.percentage_too_high", "percentage exceeds the allowed maximum")
	ErrUsageLimitReached      = failure.Conflict("discount.usage_limit_reached", "discount usage limit reached")
	ErrKindMismatch           = failure.Conflict("discount.kind_mismatch", "discount kind does not match the request")
	ErrRequestMismatch        = failure.Conflict("discount.request_mismatch", "requested value does not match the discount")
	ErrDuplicateCode          = failure.Conflict("discount.duplicate_code", "discount code already exists")
)

// Params are the caller-supplied attributes of a discount.
type Params struct {
	Code           string
	Kind           Kind
	FixedAmount    decimal.NullDecimal
	Percentage     decimal.NullDecimal // fraction in (0, 1]
	MaxUses        int
	MinOrderAmount decimal.Decimal
	MaxUsesPerUser int
	ValidFrom      time.Time
	ValidTo        time.Time
	AutoApply      bool
}

// Snapshot is the full persisted state of a discount.
type Snapshot struct {
	ID string
	Params
	Uses      int
	Active    bool
	CreatedAt time.Time
}

// Discount is a single discount rule with its usage counter.
type Discount struct {
	s Snapshot
}

// Create validates p and returns a new active discount with zero uses.
func Create(p Params, now time.Time) (*Discount, error) {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	if err := validate(p, now, true).Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return nil, err
	}
	return &Discount{s: Snapshot{
		ID:        uuid.New().String(),
		Params:    p,
		Active:    true,
		CreatedAt: now.UTC(),
	}}, nil
}

// From reconstructs a discount from persisted state, re-checking its invariants.
// Bounds in the past are accepted.
func From(s Snapshot) (*Discount, error) {
	f := validate(s.Params, time.Time{}, false)
	f.Check(s.ID != "", "id", "must not be empty")
	f.Check(s.Uses >= 0, "uses", "must not be negative")
	f.Check(s.Uses <= s.MaxUses, "uses", "must not exceed max_uses")
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return nil, err
	}
	return &Discount{s: s}, nil
}

// Snapshot returns a copy of the discount state for persistence.
func (d *Discount) Snapshot() Snapshot { return d.s }

func (d *Discount) ID() string                       { return d.s.ID }
func (d *Discount) Code() string                     { return d.s.Code }
func (d *Discount) Kind() Kind                       { return d.s.Kind }
func (d *Discount) FixedAmount() decimal.NullDecimal { return d.s.FixedAmount }
func (d *Discount) Percentage() decimal.NullDecimal  { return d.s.Percentage }
func (d *Discount) MaxUses() int                     { return d.s.MaxUses }
func (d *Discount) Uses() int                        { return d.s.Uses }
func (d *Discount) MinOrderAmount() decimal.Decimal  { return d.s.MinOrderAmount }
func (d *Discount) MaxUsesPerUser() int              { return d.s.MaxUsesPerUser }
func (d *Discount) ValidFrom() time.Time             { return d.s.ValidFrom }
func (d *Discount) ValidTo() time.Time               { return d.s.ValidTo }
func (d *Discount) IsActive() bool                   { return d.s.Active }
func (d *Discount) AutoApply() bool                  { return d.s.AutoApply }
func (d *Discount) CreatedAt() time.Time             { return d.s.CreatedAt }

// IsValidForUse reports whether the discount may be applied to an order of
// orderAmount by a user who has already redeemed it userUsageCount times.
func (d *Discount) IsValidForUse(orderAmount decimal.Decimal, userUsageCount int, now time.Time) bool {
	return d.s.Active &&
		!now.Before(d.s.ValidFrom) &&
		!now.After(d.s.ValidTo) &&
		d.s.Uses < d.s.MaxUses &&
		orderAmount.GreaterThanOrEqual(d.s.MinOrderAmount) &&
		userUsageCount < d.s.MaxUsesPerUser
}

// CalculateDiscount returns the amount to subtract from orderAmount.
// A coupon with a fixed amount ignores its percentage.
func (d *Discount) CalculateDiscount(orderAmount decimal.Decimal) decimal.Decimal {
	switch d.s.Kind {
	case KindFixed:
		return decimal.Min(d.s.FixedAmount.Decimal, orderAmount)
	case KindPercentage:
		return orderAmount.Mul(d.s.Percentage.Decimal)
	case KindCoupon:
		if d.s.FixedAmount.Valid {
			return decimal.Min(d.s.FixedAmount.Decimal, orderAmount)
		}
		return orderAmount.Mul(d.s.Percentage.Decimal)
	default:
		panic(fmt.Sprintf("discount %s: unknown kind %s", d.s.ID, d.s.Kind))
	}
}

// IncrementUsage records one redemption. It panics when the discount is
// already at its usage cap; callers must gate with IsValidForUse first.
func (d *Discount) IncrementUsage() {
	if d.s.Uses >= d.s.MaxUses {
		panic(fmt.Sprintf("discount %s: usage %d already at cap %d", d.s.ID, d.s.Uses, d.s.MaxUses))
	}
	d.s.Uses++
}

// Deactivate disables the discount permanently.
func (d *Discount) Deactivate() {
	d.s.Active = false
}

// ApplyRequest describes a single-discount application. Percentage is in
// whole-number percent units.
type ApplyRequest struct {
	Kind        Kind
	DiscountID  string
	CouponCode  string
	Percentage  decimal.NullDecimal
	FixedAmount decimal.NullDecimal
	CustomerID  string
	IsAdmin     bool
}

// Repository is the read side of discount persistence. Missing discounts are
// reported as ErrNotFound.
type Repository interface {
	GetByID(ctx context.Context, id string) (Snapshot, error)
	GetByCode(ctx context.Context, code string) (Snapshot, error)
	UserUsages(ctx context.Context, customerID, discountID string) (int, error)
	RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]Snapshot, error)
}

// Store is the write side of discount persistence.
type Store interface {
	Create(ctx context.Context, s Snapshot) error
	Deactivate(ctx context.Context, id string) error
	// RedeemUsage atomically increments the usage counter and records the
	// redemption for the customer. It returns ErrNotValidForUse for an
	// inactive or out-of-window discount and ErrUsageLimitReached when either
	// the total or the per-user cap is already reached.
	RedeemUsage(ctx context.Context, discountID, customerID, orderID string) error
}
