package discount

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CouponStrategy applies code-based discounts.
type CouponStrategy struct {
	base
}

var _ Strategy = (*CouponStrategy)(nil)

func (s *CouponStrategy) Kind() Kind { return KindCoupon }

func (s *CouponStrategy) Apply(ctx context.Context, orderAmount decimal.Decimal, req ApplyRequest) (decimal.Decimal, error) {
	if err := s.invalidRequest(KindCoupon, orderAmount, req); err != nil {
		return decimal.Zero, err
	}

	d, err := s.byCode(ctx, strings.ToUpper(strings.TrimSpace(req.CouponCode)))
	if err != nil {
		return decimal.Zero, err
	}
	if d.Kind() != KindCoupon {
		return decimal.Zero, ErrKindMismatch
	}
	return s.gate(ctx, d, orderAmount, req.CustomerID)
}

func (s *CouponStrategy) CalculateTotal(ctx context.Context, cartAmount decimal.Decimal, ids []string) (decimal.Decimal, error) {
	b, err := s.Stack(ctx, cartAmount, ids)
	return b.Total, err
}

func (s *CouponStrategy) Stack(ctx context.Context, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	now := s.now()
	return stack(ctx, s.repo, cartAmount, ids, func(d *Discount, cart decimal.Decimal) error {
		return validForUseGate(d, cart, now)
	})
}

func (s *CouponStrategy) Checkout(ctx context.Context, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	return s.checkout(ctx, customerID, cartAmount, ids)
}

// validForUseGate checks the full usage rule without customer history.
func validForUseGate(d *Discount, cartAmount decimal.Decimal, now time.Time) error {
	if !d.IsValidForUse(cartAmount, 0, now) {
		return ErrNotValidForUse
	}
	return nil
}
