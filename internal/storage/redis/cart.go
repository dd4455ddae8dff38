// Package redis stores carts in Redis as JSON documents with a sliding TTL.
package redis

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
)

const keyPrefix = "cart:"

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store. Every save refreshes the TTL, with up to
// jitter added so carts created together do not expire together.
type CartStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	jitter time.Duration
}

// NewCartStore returns a CartStore over client.
func NewCartStore(client redis.UniversalClient, ttl, jitter time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl, jitter: jitter}
}

type itemDoc struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type cartDoc struct {
	UserID       string          `json:"user_id"`
	Currency     string          `json:"currency"`
	Items        []itemDoc       `json:"items"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountKind string          `json:"discount_kind,omitempty"`
	DiscountIDs  []string        `json:"discount_ids,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func cartKey(userID string) string {
	return keyPrefix + userID
}

// Get loads the cart of userID. It returns cart.ErrNotFound when absent or expired.
func (s *CartStore) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var doc cartDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	return fromDoc(doc)
}

// Save stores c and refreshes its TTL.
func (s *CartStore) Save(ctx context.Context, c *cart.Cart) error {
	data, err := json.Marshal(toDoc(c))
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	if err := s.client.Set(ctx, cartKey(c.UserID), data, s.expiry()).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete removes the cart of userID. Deleting a missing cart is not an error.
func (s *CartStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Ping checks the Redis connection.
func (s *CartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CartStore) expiry() time.Duration {
	if s.jitter <= 0 {
		return s.ttl
	}
	return s.ttl + rand.N(s.jitter)
}

func toDoc(c *cart.Cart) cartDoc {
	doc := cartDoc{
		UserID:      c.UserID,
		Currency:    string(c.Currency()),
		Items:       make([]itemDoc, 0, c.Len()),
		Discount:    c.DiscountAmount().Amount(),
		DiscountIDs: c.DiscountIDs,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.DiscountKind.Valid() {
		doc.DiscountKind = c.DiscountKind.String()
	}
	for _, it := range c.Items() {
		doc.Items = append(doc.Items, itemDoc{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount(),
		})
	}
	return doc
}

func fromDoc(doc cartDoc) (*cart.Cart, error) {
	currency := money.Currency(doc.Currency)
	items := make([]lineitem.Item, 0, len(doc.Items))
	for _, it := range doc.Items {
		price, err := money.New(it.UnitPrice, currency)
		if err != nil {
			return nil, errors.Wrapf(err, "item %s", it.ProductID)
		}
		items = append(items, lineitem.Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price})
	}
	basket, err := lineitem.Restore(currency, items, doc.Discount)
	if err != nil {
		return nil, errors.Wrap(err, "restore cart")
	}

	c := &cart.Cart{
		UserID:      doc.UserID,
		Basket:      basket,
		DiscountIDs: doc.DiscountIDs,
		UpdatedAt:   doc.UpdatedAt,
	}
	if doc.DiscountKind != "" {
		if c.DiscountKind, err = discount.ParseKind(doc.DiscountKind); err != nil {
			return nil, errors.Wrap(err, "discount kind")
		}
	}
	return c, nil
}
