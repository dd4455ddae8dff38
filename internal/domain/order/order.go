package order

import (
	"context"
	"time"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/lineitem"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = failure.NotFound("order.not_found", "order not found")

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID         string
	CustomerID string
	lineitem.Basket
	DiscountKind discount.Kind
	Discounts    []discount.Applied
	CreatedAt    time.Time
}

// OrderItem is a requested product line.
type OrderItem struct {
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
}

// Transactor runs fn in a single storage transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
