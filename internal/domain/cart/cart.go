// Package cart manages per-customer shopping carts.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/product"
)

var (
	ErrNotFound      = failure.NotFound("cart.not_found", "cart not found")
	ErrEmpty         = failure.Conflict("cart.empty", "cart is empty")
	ErrDuplicateItem = lineitem.ErrDuplicate
)

// Cart is a customer's pending selection.
type Cart struct {
	UserID string
	lineitem.Basket
	// DiscountKind and DiscountIDs record the last applied stack.
	DiscountKind discount.Kind
	DiscountIDs  []string
	UpdatedAt    time.Time
}

// New returns an empty cart.
func New(userID string, currency money.Currency) *Cart {
	return &Cart{UserID: userID, Basket: lineitem.NewBasket(currency)}
}

// Store persists carts. Get returns ErrNotFound for a customer without one.
type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID string) error
}

// Discounts stacks discounts against an amount.
type Discounts interface {
	CalculateTotal(ctx context.Context, kind discount.Kind, amount decimal.Decimal, ids []string) (decimal.Decimal, error)
}

// Service implements cart operations on top of a Store.
type Service struct {
	store     Store
	products  product.Repository
	discounts Discounts
	currency  money.Currency
	now       func() time.Time
}

// NewService creates a cart Service. New carts are priced in currency.
func NewService(store Store, products product.Repository, discounts Discounts, currency money.Currency) *Service {
	return &Service{
		store:     store,
		products:  products,
		discounts: discounts,
		currency:  currency,
		now:       time.Now,
	}
}

// Get returns the customer's cart, or an empty one.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return New(userID, s.currency), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds quantity units of productID priced from the catalog.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	price, err := p.UnitPrice()
	if err != nil {
		return nil, errors.Wrapf(err, "price of product %s", productID)
	}
	if err := c.Add(lineitem.Item{ProductID: p.ID, Quantity: quantity, UnitPrice: price}); err != nil {
		return nil, err
	}
	return s.save(ctx, c)
}

// RemoveItem drops the line for productID.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.Remove(productID); err != nil {
		return nil, err
	}
	return s.save(ctx, c)
}

// ApplyDiscounts stacks ids, in order, against the current cart total and
// stores the result as the cart discount.
func (s *Service) ApplyDiscounts(ctx context.Context, userID string, kind discount.Kind, ids []string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, ErrEmpty
	}
	amount, err := s.discounts.CalculateTotal(ctx, kind, c.TotalAmount().Amount(), ids)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyDiscount(amount); err != nil {
		return nil, err
	}
	c.DiscountKind = kind
	c.DiscountIDs = append([]string(nil), ids...)

	zctx.From(ctx).Debug("Cart discounts applied",
		zap.String("user_id", userID),
		zap.Strings("discount_ids", ids),
		zap.Stringer("discount", c.DiscountAmount()),
	)
	return s.save(ctx, c)
}

// Clear removes the customer's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *Service) save(ctx context.Context, c *Cart) (*Cart, error) {
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}
