package discount

import (
	"context"

	"github.com/shopspring/decimal"
)

// PercentageStrategy applies percent-of-order discounts.
type PercentageStrategy struct {
	base
}

var _ Strategy = (*PercentageStrategy)(nil)

func (s *PercentageStrategy) Kind() Kind { return KindPercentage }

// Apply rejects non-admin requests above the customer cap before looking the
// discount up. The requested percent must match the stored one.
func (s *PercentageStrategy) Apply(ctx context.Context, orderAmount decimal.Decimal, req ApplyRequest) (decimal.Decimal, error) {
	if err := s.invalidRequest(KindPercentage, orderAmount, req); err != nil {
		return decimal.Zero, err
	}
	if !req.IsAdmin && req.Percentage.Decimal.GreaterThan(s.policy.MaxCustomerPercentage) {
		return decimal.Zero, ErrPercentageTooHigh
	}
	if err := s.checkRecent(ctx, req.CustomerID, s.policy.PercentageWindow, s.policy.PercentageMaxRecent); err != nil {
		return decimal.Zero, err
	}

	d, err := s.byID(ctx, req.DiscountID)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Kind() != KindPercentage {
		return decimal.Zero, ErrKindMismatch
	}
	if !d.Percentage().Decimal.Equal(PercentToFraction(req.Percentage.Decimal)) {
		return decimal.Zero, ErrRequestMismatch
	}
	return s.gate(ctx, d, orderAmount, req.CustomerID)
}

func (s *PercentageStrategy) CalculateTotal(ctx context.Context, cartAmount decimal.Decimal, ids []string) (decimal.Decimal, error) {
	b, err := s.Stack(ctx, cartAmount, ids)
	return b.Total, err
}

func (s *PercentageStrategy) Stack(ctx context.Context, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	return stack(ctx, s.repo, cartAmount, ids, minOrderGate)
}

func (s *PercentageStrategy) Checkout(ctx context.Context, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	if err := s.checkRecent(ctx, customerID, s.policy.PercentageWindow, s.policy.PercentageMaxRecent); err != nil {
		return Breakdown{}, err
	}
	return s.checkout(ctx, customerID, cartAmount, ids)
}
