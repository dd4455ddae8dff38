package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, customer_id, currency, items, subtotal, discount, total, discount_kind, discounts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT id, customer_id, currency, items, discount, discount_kind, discounts, created_at
		FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderItemRow struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type appliedRow struct {
	DiscountID string          `json:"discount_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// Create persists a new order. Items and applied discounts are serialized to
// JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items := make([]orderItemRow, 0, o.Len())
	for _, it := range o.Items() {
		items = append(items, orderItemRow{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount(),
		})
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	applied := make([]appliedRow, 0, len(o.Discounts))
	for _, a := range o.Discounts {
		applied = append(applied, appliedRow{DiscountID: a.DiscountID, Amount: a.Amount})
	}
	appliedJSON, err := json.Marshal(applied)
	if err != nil {
		return errors.Wrap(err, "marshal applied discounts")
	}

	var kind string
	if o.DiscountKind.Valid() {
		kind = o.DiscountKind.String()
	}

	_, err = r.db.querier(ctx).Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, string(o.Currency()), itemsJSON,
		o.TotalAmount().Amount(), o.DiscountAmount().Amount(), o.TotalWithDiscount().Amount(),
		kind, appliedJSON, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}

	return nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var (
		o           order.Order
		currency    string
		itemsJSON   []byte
		amount      decimal.Decimal
		kind        string
		appliedJSON []byte
		createdAt   time.Time
	)
	err := r.db.querier(ctx).QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.CustomerID, &currency, &itemsJSON, &amount, &kind, &appliedJSON, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	var rows []orderItemRow
	if err := json.Unmarshal(itemsJSON, &rows); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	cur := money.Currency(currency)
	items := make([]lineitem.Item, 0, len(rows))
	for _, row := range rows {
		price, err := money.New(row.UnitPrice, cur)
		if err != nil {
			return nil, errors.Wrapf(err, "order %q item %q", id, row.ProductID)
		}
		items = append(items, lineitem.Item{ProductID: row.ProductID, Quantity: row.Quantity, UnitPrice: price})
	}
	if o.Basket, err = lineitem.Restore(cur, items, amount); err != nil {
		return nil, errors.Wrapf(err, "restore order %q", id)
	}

	var applied []appliedRow
	if err := json.Unmarshal(appliedJSON, &applied); err != nil {
		return nil, errors.Wrap(err, "unmarshal applied discounts")
	}
	for _, a := range applied {
		o.Discounts = append(o.Discounts, discount.Applied{DiscountID: a.DiscountID, Amount: a.Amount})
	}
	if kind != "" {
		if o.DiscountKind, err = discount.ParseKind(kind); err != nil {
			return nil, errors.Wrapf(err, "order %q", id)
		}
	}
	o.CreatedAt = createdAt
	return &o, nil
}
