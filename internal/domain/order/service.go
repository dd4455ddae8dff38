package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrInvalid         = failure.Validation("order.invalid", "invalid order")
	ErrProductNotFound = failure.NotFound("order.product_not_found", "product not found")
	ErrNothingToPay    = failure.Conflict("order.nothing_to_pay", "order total is zero")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// Discounts checks, stacks and redeems discounts for an order.
type Discounts interface {
	Checkout(ctx context.Context, kind discount.Kind, customerID string, amount decimal.Decimal, ids []string) (discount.Breakdown, error)
	Redeem(ctx context.Context, discountID, customerID, orderID string) error
}

// PlaceOrderRequest holds the input for placing an order. DiscountIDs are
// stacked in the given order.
type PlaceOrderRequest struct {
	CustomerID   string
	Items        []OrderItem
	DiscountKind discount.Kind
	DiscountIDs  []string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic.
type Service struct {
	products  product.Repository
	discounts Discounts
	orders    Repository
	tx        Transactor
	currency  money.Currency
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	discounts Discounts,
	orders Repository,
	tx Transactor,
	currency money.Currency,
) *Service {
	return &Service{
		products:  products,
		discounts: discounts,
		orders:    orders,
		tx:        tx,
		currency:  currency,
		now:       time.Now,
	}
}

// PlaceOrder validates items, fetches products in a single batch, checks and
// stacks the requested discounts for the customer, then persists the order and redeems every discount
// that contributed in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	var f failure.Fields
	f.Check(req.CustomerID != "", "customer_id", "required")
	f.Check(len(req.Items) > 0, "items", "required")
	for i, item := range req.Items {
		f.Check(item.Quantity > 0, fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
	}
	if len(req.DiscountIDs) > 0 {
		f.Check(req.DiscountKind.Valid(), "discount_kind", "required with discount_ids")
	}
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	o := &Order{
		ID:         uuid.New().String(),
		CustomerID: req.CustomerID,
		Basket:     lineitem.NewBasket(s.currency),
		CreatedAt:  s.now().UTC(),
	}
	products := make([]product.Product, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		price, err := p.UnitPrice()
		if err != nil {
			return nil, errors.Wrapf(err, "price of product %s", p.ID)
		}
		if err := o.Add(lineitem.Item{ProductID: p.ID, Quantity: item.Quantity, UnitPrice: price}); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if len(req.DiscountIDs) > 0 {
		b, err := s.discounts.Checkout(ctx, req.DiscountKind, o.CustomerID, o.TotalAmount().Amount(), req.DiscountIDs)
		if err != nil {
			return nil, err
		}
		if err := o.ApplyDiscount(b.Total); err != nil {
			return nil, err
		}
		o.DiscountKind = req.DiscountKind
		o.Discounts = b.Applied
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for _, a := range o.Discounts {
			if err := s.discounts.Redeem(ctx, a.DiscountID, o.CustomerID, o.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Stringer("total", o.TotalWithDiscount()),
		zap.Int("discounts", len(o.Discounts)),
	)
	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// PayableAmount returns the discounted total of an order.
func (s *Service) PayableAmount(ctx context.Context, orderID string) (money.Money, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return money.Money{}, err
	}
	total := o.TotalWithDiscount()
	if total.IsZero() {
		return money.Money{}, ErrNothingToPay
	}
	return total, nil
}
