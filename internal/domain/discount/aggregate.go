package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// gateFunc decides whether d may take part in a stack against cartAmount.
type gateFunc func(d *Discount, cartAmount decimal.Decimal) error

func minOrderGate(d *Discount, cartAmount decimal.Decimal) error {
	if d.MinOrderAmount().GreaterThan(cartAmount) {
		return ErrMinOrderNotReached
	}
	return nil
}

// Applied is one discount that contributed to a stack.
type Applied struct {
	DiscountID string
	Amount     decimal.Decimal
}

// Breakdown is the result of stacking discounts against a cart.
type Breakdown struct {
	Total   decimal.Decimal
	Applied []Applied
}

// stack combines the discounts in ids, in order, against cartAmount. Each
// discount is computed against what is left of the cart after the previous
// ones, so the total never exceeds cartAmount. Any failure aborts the whole
// call without a partial total.
func stack(ctx context.Context, repo Repository, cartAmount decimal.Decimal, ids []string, gate gateFunc) (Breakdown, error) {
	if len(ids) == 0 {
		return Breakdown{Total: decimal.Zero}, nil
	}
	if cartAmount.IsNegative() {
		return Breakdown{}, failure.Validation(ErrInvalidRequest.Code, ErrInvalidRequest.Message,
			failure.FieldError{Field: "cart_amount", Message: "must not be negative"})
	}

	var applied []Applied
	total := decimal.Zero
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			return Breakdown{}, err
		}

		s, err := repo.GetByID(ctx, id)
		if err != nil {
			return Breakdown{}, errors.Wrapf(err, "get discount %s", id)
		}
		d, err := From(s)
		if err != nil {
			return Breakdown{}, err
		}
		if err := gate(d, cartAmount); err != nil {
			return Breakdown{}, errors.Wrapf(err, "discount %s", id)
		}

		increment := d.CalculateDiscount(cartAmount.Sub(total)).Round(2)
		if !increment.IsPositive() {
			continue
		}
		if total.Add(increment).GreaterThanOrEqual(cartAmount) {
			applied = append(applied, Applied{DiscountID: id, Amount: cartAmount.Sub(total)})
			total = cartAmount
			break
		}
		total = total.Add(increment)
		applied = append(applied, Applied{DiscountID: id, Amount: increment})
	}
	return Breakdown{Total: total, Applied: applied}, nil
}
