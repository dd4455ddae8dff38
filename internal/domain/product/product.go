package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = failure.NotFound("product.not_found", "product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Currency money.Currency
	Category string
	Image    Image
}

// UnitPrice returns the price as Money.
func (p Product) UnitPrice() (money.Money, error) {
	return money.New(p.Price, p.Currency)
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
