// Package lineitem holds the ordered, product-unique item list shared by
// carts and orders, together with its discount and derived totals.
package lineitem

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/money"
)

var (
	ErrInvalid   = failure.Validation("lineitem.invalid", "invalid line item")
	ErrDuplicate = failure.Conflict("lineitem.duplicate", "product is already in the list")
	ErrNotFound  = failure.NotFound("lineitem.not_found", "product is not in the list")
)

// Item is one product line.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice money.Money
}

// Total returns UnitPrice * Quantity.
func (i Item) Total() money.Money {
	return i.UnitPrice.Times(int64(i.Quantity))
}

// Basket is an insertion-ordered list of items with at most one line per
// product, plus a separately tracked discount.
type Basket struct {
	currency money.Currency
	items    []Item
	discount decimal.Decimal
}

// NewBasket returns an empty basket priced in currency.
func NewBasket(currency money.Currency) Basket {
	return Basket{currency: currency, discount: decimal.Zero}
}

// Restore rebuilds a basket from stored items, re-checking every line.
func Restore(currency money.Currency, items []Item, discount decimal.Decimal) (Basket, error) {
	b := NewBasket(currency)
	for _, it := range items {
		if err := b.Add(it); err != nil {
			return Basket{}, err
		}
	}
	if err := b.ApplyDiscount(discount); err != nil {
		return Basket{}, err
	}
	return b, nil
}

// Currency returns the basket currency.
func (b *Basket) Currency() money.Currency { return b.currency }

// Items returns a copy of the lines in insertion order.
func (b *Basket) Items() []Item {
	return append([]Item(nil), b.items...)
}

// Len returns the number of lines.
func (b *Basket) Len() int { return len(b.items) }

// Add appends a line. A product may appear only once.
func (b *Basket) Add(it Item) error {
	var f failure.Fields
	f.Check(it.ProductID != "", "product_id", "required")
	f.Check(it.Quantity >= 1, "quantity", "must be at least 1")
	f.Check(it.UnitPrice.Amount().IsPositive(), "unit_price", "must be greater than zero")
	f.Check(it.UnitPrice.Currency() == b.currency, "unit_price", "currency must be "+string(b.currency))
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return err
	}
	for _, existing := range b.items {
		if existing.ProductID == it.ProductID {
			return failure.Conflict(ErrDuplicate.Code, fmt.Sprintf("product %s is already in the list", it.ProductID))
		}
	}
	b.items = append(b.items, it)
	return nil
}

// Remove deletes the line for productID, keeping the order of the others.
func (b *Basket) Remove(productID string) error {
	for i, it := range b.items {
		if it.ProductID == productID {
			b.items = append(b.items[:i:i], b.items[i+1:]...)
			return nil
		}
	}
	return failure.NotFound(ErrNotFound.Code, fmt.Sprintf("product %s is not in the list", productID))
}

// ApplyDiscount replaces the tracked discount amount.
func (b *Basket) ApplyDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "discount", Message: "must not be negative"})
	}
	b.discount = amount
	return nil
}

// DiscountAmount returns the tracked discount.
func (b *Basket) DiscountAmount() money.Money {
	return moneyOf(b.discount, b.currency)
}

// TotalAmount sums the lines. A basket with lines must have a positive
// total; anything else is a corrupted state and panics.
func (b *Basket) TotalAmount() money.Money {
	total := decimal.Zero
	for _, it := range b.items {
		total = total.Add(it.Total().Amount())
	}
	if len(b.items) > 0 && !total.IsPositive() {
		panic(fmt.Sprintf("lineitem: %d items with non-positive total %s", len(b.items), total))
	}
	return moneyOf(total, b.currency)
}

// TotalWithDiscount is TotalAmount minus the discount, floored at zero.
func (b *Basket) TotalWithDiscount() money.Money {
	net := b.TotalAmount().Amount().Sub(b.discount)
	if !net.IsPositive() {
		return money.Zero(b.currency)
	}
	return moneyOf(net, b.currency)
}

func moneyOf(amount decimal.Decimal, currency money.Currency) money.Money {
	if amount.IsZero() {
		return money.Zero(currency)
	}
	m, err := money.New(amount, currency)
	if err != nil {
		panic(fmt.Sprintf("lineitem: %v", err))
	}
	return m.Round()
}
