package discount

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// MaxValidityHorizon bounds how far in the future a new discount may start or end.
const MaxValidityHorizon = 365 * 24 * time.Hour

// validate checks the invariants of p. When creating, bounds are also
// checked against now.
func validate(p Params, now time.Time, creating bool) failure.Fields {
	var f failure.Fields

	switch p.Kind {
	case KindFixed:
		f.Check(p.FixedAmount.Valid, "fixed_amount", "required for fixed discounts")
		f.Check(!p.Percentage.Valid, "percentage", "must be empty for fixed discounts")
	case KindPercentage:
		f.Check(p.Percentage.Valid, "percentage", "required for percentage discounts")
		f.Check(!p.FixedAmount.Valid, "fixed_amount", "must be empty for percentage discounts")
	case KindCoupon:
		f.Check(p.FixedAmount.Valid || p.Percentage.Valid, "fixed_amount", "coupon needs a fixed amount or a percentage")
		f.Check(strings.TrimSpace(p.Code) != "", "code", "required for coupon discounts")
	default:
		f.Add("kind", "unknown kind")
	}

	if p.FixedAmount.Valid {
		f.Check(p.FixedAmount.Decimal.IsPositive(), "fixed_amount", "must be greater than zero")
	}
	if p.Percentage.Valid {
		f.Check(p.Percentage.Decimal.IsPositive() && p.Percentage.Decimal.LessThanOrEqual(decimal.NewFromInt(1)),
			"percentage", "must be in (0, 100] percent")
	}

	f.Check(p.MaxUses >= 1, "max_uses", "must be at least 1")
	f.Check(p.MaxUsesPerUser >= 1, "max_uses_per_user", "must be at least 1")
	f.Check(!p.MinOrderAmount.IsNegative(), "min_order_amount", "must not be negative")

	from := p.ValidFrom.Truncate(time.Minute)
	to := p.ValidTo.Truncate(time.Minute)
	f.Check(from.Before(to), "valid_to", "must be after valid_from")

	if creating {
		current := now.Truncate(time.Minute)
		horizon := now.Add(MaxValidityHorizon)
		f.Check(!from.Before(current), "valid_from", "must not be in the past")
		f.Check(!to.Before(current), "valid_to", "must not be in the past")
		f.Check(!p.ValidFrom.After(horizon), "valid_from", "must be within 365 days")
		f.Check(!p.ValidTo.After(horizon), "valid_to", "must be within 365 days")
	}

	return f
}

// requestFields checks the shape of an ApplyRequest for the given kind.
func requestFields(kind Kind, orderAmount decimal.Decimal, req ApplyRequest) failure.Fields {
	var f failure.Fields

	f.Check(orderAmount.IsPositive(), "order_amount", "must be greater than zero")
	f.Check(strings.TrimSpace(req.CustomerID) != "", "customer_id", "required")

	switch kind {
	case KindFixed:
		f.Check(req.DiscountID != "", "discount_id", "required")
		f.Check(req.FixedAmount.Valid, "fixed_amount", "required")
		if req.FixedAmount.Valid {
			f.Check(req.FixedAmount.Decimal.IsPositive(), "fixed_amount", "must be greater than zero")
		}
		f.Check(!req.Percentage.Valid, "percentage", "must be empty")
		f.Check(req.CouponCode == "", "coupon_code", "must be empty")
	case KindPercentage:
		f.Check(req.DiscountID != "", "discount_id", "required")
		f.Check(req.Percentage.Valid, "percentage", "required")
		if req.Percentage.Valid {
			f.Check(req.Percentage.Decimal.IsPositive() && req.Percentage.Decimal.LessThanOrEqual(hundred),
				"percentage", "must be in (0, 100]")
		}
		f.Check(!req.FixedAmount.Valid, "fixed_amount", "must be empty")
		f.Check(req.CouponCode == "", "coupon_code", "must be empty")
	case KindCoupon:
		f.Check(strings.TrimSpace(req.CouponCode) != "", "coupon_code", "required")
	}

	return f
}
