package discount

import (
	"context"

	"github.com/shopspring/decimal"
)

// FixedStrategy applies fixed-amount discounts.
type FixedStrategy struct {
	base
}

var _ Strategy = (*FixedStrategy)(nil)

func (s *FixedStrategy) Kind() Kind { return KindFixed }

func (s *FixedStrategy) Apply(ctx context.Context, orderAmount decimal.Decimal, req ApplyRequest) (decimal.Decimal, error) {
	if err := s.invalidRequest(KindFixed, orderAmount, req); err != nil {
		return decimal.Zero, err
	}
	if err := s.checkRecent(ctx, req.CustomerID, s.policy.FixedWindow, s.policy.FixedMaxRecent); err != nil {
		return decimal.Zero, err
	}

	d, err := s.byID(ctx, req.DiscountID)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Kind() != KindFixed {
		return decimal.Zero, ErrKindMismatch
	}
	if !d.FixedAmount().Decimal.Equal(req.FixedAmount.Decimal) {
		return decimal.Zero, ErrRequestMismatch
	}
	return s.gate(ctx, d, orderAmount, req.CustomerID)
}

func (s *FixedStrategy) CalculateTotal(ctx context.Context, cartAmount decimal.Decimal, ids []string) (decimal.Decimal, error) {
	b, err := s.Stack(ctx, cartAmount, ids)
	return b.Total, err
}

func (s *FixedStrategy) Stack(ctx context.Context, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	return stack(ctx, s.repo, cartAmount, ids, minOrderGate)
}

func (s *FixedStrategy) Checkout(ctx context.Context, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	if err := s.checkRecent(ctx, customerID, s.policy.FixedWindow, s.policy.FixedMaxRecent); err != nil {
		return Breakdown{}, err
	}
	return s.checkout(ctx, customerID, cartAmount, ids)
}
