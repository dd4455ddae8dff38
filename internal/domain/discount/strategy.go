package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Strategy applies and stacks discounts of one kind.
type Strategy interface {
	Kind() Kind
	// Apply validates req and returns the value of the referenced discount
	// against orderAmount.
	Apply(ctx context.Context, orderAmount decimal.Decimal, req ApplyRequest) (decimal.Decimal, error)
	// CalculateTotal stacks the discounts in ids, in order, against cartAmount.
	// The result is always within [0, cartAmount].
	CalculateTotal(ctx context.Context, cartAmount decimal.Decimal, ids []string) (decimal.Decimal, error)
	// Stack is CalculateTotal with the per-discount contributions.
	Stack(ctx context.Context, cartAmount decimal.Decimal, ids []string) (Breakdown, error)
	// Checkout is Stack for discounts about to be redeemed by customerID:
	// every discount must pass the full usage rule and the customer's recent
	// redemptions count against the kind's limit.
	Checkout(ctx context.Context, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error)
}

// Policy holds the anti-abuse limits enforced by the strategies.
type Policy struct {
	// MaxCustomerPercentage is the highest percent a non-admin may request.
	MaxCustomerPercentage decimal.Decimal
	PercentageWindow      time.Duration
	PercentageMaxRecent   int
	FixedWindow           time.Duration
	FixedMaxRecent        int
}

// DefaultPolicy returns the standard limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxCustomerPercentage: decimal.NewFromInt(50),
		PercentageWindow:      30 * 24 * time.Hour,
		PercentageMaxRecent:   3,
		FixedWindow:           7 * 24 * time.Hour,
		FixedMaxRecent:        8,
	}
}

// Strategies holds one strategy per kind.
type Strategies struct {
	Fixed      *FixedStrategy
	Percentage *PercentageStrategy
	Coupon     *CouponStrategy
}

// NewStrategies builds every strategy over the same repository and policy.
func NewStrategies(repo Repository, policy Policy) Strategies {
	return Strategies{
		Fixed:      &FixedStrategy{base: newBase(repo, policy)},
		Percentage: &PercentageStrategy{base: newBase(repo, policy)},
		Coupon:     &CouponStrategy{base: newBase(repo, policy)},
	}
}

// For returns the strategy for k. An unknown kind is a programming error.
func (s Strategies) For(k Kind) Strategy {
	switch k {
	case KindFixed:
		return s.Fixed
	case KindPercentage:
		return s.Percentage
	case KindCoupon:
		return s.Coupon
	default:
		panic(fmt.Sprintf("discount: no strategy for %s", k))
	}
}

// base carries what every strategy needs.
type base struct {
	repo   Repository
	policy Policy
	now    func() time.Time
}

func newBase(repo Repository, policy Policy) base {
	return base{repo: repo, policy: policy, now: time.Now}
}

func (b *base) byID(ctx context.Context, id string) (*Discount, error) {
	s, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get discount %s", id)
	}
	return From(s)
}

func (b *base) byCode(ctx context.Context, code string) (*Discount, error) {
	s, err := b.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(err, "get discount by code %s", code)
	}
	return From(s)
}

// checkRecent rejects customers that received more than limit discounts
// within window.
func (b *base) checkRecent(ctx context.Context, customerID string, window time.Duration, limit int) error {
	recent, err := b.repo.RecentByCustomer(ctx, customerID, b.now().Add(-window))
	if err != nil {
		return errors.Wrap(err, "recent discounts")
	}
	if len(recent) > limit {
		return ErrTooManyRecentDiscounts
	}
	return nil
}

// gate applies the discount's usage rule for d against orderAmount and the
// customer's prior redemptions, then computes the rounded value.
func (b *base) gate(ctx context.Context, d *Discount, orderAmount decimal.Decimal, customerID string) (decimal.Decimal, error) {
	usages, err := b.repo.UserUsages(ctx, customerID, d.ID())
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "user usages")
	}
	if !d.IsValidForUse(orderAmount, usages, b.now()) {
		return decimal.Zero, ErrNotValidForUse
	}
	return d.CalculateDiscount(orderAmount).Round(2), nil
}

// checkout stacks ids under the full usage rule for customerID.
func (b *base) checkout(ctx context.Context, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	now := b.now()
	return stack(ctx, b.repo, cartAmount, ids, func(d *Discount, cart decimal.Decimal) error {
		usages, err := b.repo.UserUsages(ctx, customerID, d.ID())
		if err != nil {
			return errors.Wrap(err, "user usages")
		}
		if !d.IsValidForUse(cart, usages, now) {
			return ErrNotValidForUse
		}
		return nil
	})
}

func (b *base) invalidRequest(kind Kind, orderAmount decimal.Decimal, req ApplyRequest) error {
	return requestFields(kind, orderAmount, req).Err(ErrInvalidRequest.Code, ErrInvalidRequest.Message)
}
