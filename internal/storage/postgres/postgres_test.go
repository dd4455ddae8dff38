//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/ecomify/internal/domain/auth"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/order"
	"github.com/xenking/ecomify/internal/domain/payment"
	"github.com/xenking/ecomify/internal/domain/product"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ecomify"),
		tcpostgres.WithUsername("ecomify"),
		tcpostgres.WithPassword("ecomify"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewDB(pool, zaptest.NewLogger(t))
}

func seedProduct(t *testing.T, db *DB) product.Product {
	t.Helper()
	p := product.Product{
		ID:       "waffle",
		Name:     "Waffle with Berries",
		Price:    decimal.RequireFromString("6.50"),
		Currency: money.USD,
		Category: "Waffle",
	}
	require.NoError(t, NewProductRepository(db).Upsert(context.Background(), p))
	return p
}

func placeOrder(t *testing.T, db *DB, customerID string, p product.Product) *order.Order {
	t.Helper()
	price, err := p.UnitPrice()
	require.NoError(t, err)
	o := &order.Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Basket:     lineitem.NewBasket(money.USD),
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, o.Add(lineitem.Item{ProductID: p.ID, Quantity: 2, UnitPrice: price}))
	require.NoError(t, NewOrderRepository(db).Create(context.Background(), o))
	return o
}

func TestIntegration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db)

	t.Run("Products", func(t *testing.T) {
		repo := NewProductRepository(db)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.True(t, p.Price.Equal(got.Price))
		assert.Equal(t, money.USD, got.Currency)

		_, err = repo.GetByID(ctx, "missing")
		require.ErrorIs(t, err, product.ErrNotFound)

		list, err := repo.GetByIDs(ctx, []string{p.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("APIKeys", func(t *testing.T) {
		repo := NewAPIKeyRepository(db)
		key := &auth.APIKeyInfo{ID: uuid.New().String(), KeyHash: "hash-1", Name: "admin", Scopes: []string{auth.ScopeAdmin}}
		require.NoError(t, repo.Create(ctx, key))
		require.NoError(t, repo.Create(ctx, key))

		got, err := repo.FindByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.True(t, got.IsAdmin())

		_, err = repo.FindByHash(ctx, "nope")
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("Discounts", func(t *testing.T) {
		repo := NewDiscountRepository(db)
		now := time.Now()
		d, err := discount.Create(discount.Params{
			Code:           " summer ",
			Kind:           discount.KindCoupon,
			FixedAmount:    decimal.NewNullDecimal(decimal.NewFromInt(5)),
			MaxUses:        2,
			MaxUsesPerUser: 1,
			ValidFrom:      now,
			ValidTo:        now.Add(24 * time.Hour),
		}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, d.Snapshot()))
		require.ErrorIs(t, repo.Create(ctx, func() discount.Snapshot {
			s := d.Snapshot()
			s.ID = uuid.New().String()
			return s
		}()), discount.ErrDuplicateCode)

		got, err := repo.GetByCode(ctx, "summer")
		require.NoError(t, err)
		assert.Equal(t, d.ID(), got.ID)
		assert.Equal(t, "SUMMER", got.Code)
		assert.True(t, got.FixedAmount.Valid)
		assert.False(t, got.Percentage.Valid)
		_, err = discount.From(got)
		require.NoError(t, err)

		o1 := placeOrder(t, db, "alice", p)
		o2 := placeOrder(t, db, "alice", p)
		o3 := placeOrder(t, db, "bob", p)

		require.NoError(t, repo.RedeemUsage(ctx, d.ID(), "alice", o1.ID))
		require.ErrorIs(t, repo.RedeemUsage(ctx, d.ID(), "alice", o2.ID), discount.ErrUsageLimitReached,
			"per-user cap")
		require.NoError(t, repo.RedeemUsage(ctx, d.ID(), "bob", o3.ID))
		require.ErrorIs(t, repo.RedeemUsage(ctx, d.ID(), "carol", o3.ID), discount.ErrUsageLimitReached,
			"global cap")

		got, err = repo.GetByID(ctx, d.ID())
		require.NoError(t, err)
		assert.Equal(t, 2, got.Uses, "failed redemptions roll back")

		n, err := repo.UserUsages(ctx, "alice", d.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		recent, err := repo.RecentByCustomer(ctx, "bob", now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, d.ID(), recent[0].ID)

		require.NoError(t, repo.Deactivate(ctx, d.ID()))
		got, err = repo.GetByID(ctx, d.ID())
		require.NoError(t, err)
		assert.False(t, got.Active)
		require.ErrorIs(t, repo.Deactivate(ctx, "missing"), discount.ErrNotFound)
		require.ErrorIs(t, repo.RedeemUsage(ctx, d.ID(), "dave", o3.ID), discount.ErrNotValidForUse,
			"deactivated")

		expired := d.Snapshot()
		expired.ID = uuid.New().String()
		expired.Code = "EXPIRED"
		expired.ValidFrom = now.Add(-48 * time.Hour)
		expired.ValidTo = now.Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, expired))
		require.ErrorIs(t, repo.RedeemUsage(ctx, expired.ID, "dave", o3.ID), discount.ErrNotValidForUse)

		upcoming := d.Snapshot()
		upcoming.ID = uuid.New().String()
		upcoming.Code = "UPCOMING"
		upcoming.ValidFrom = now.Add(time.Hour)
		upcoming.ValidTo = now.Add(48 * time.Hour)
		require.NoError(t, repo.Create(ctx, upcoming))
		require.ErrorIs(t, repo.RedeemUsage(ctx, upcoming.ID, "dave", o3.ID), discount.ErrNotValidForUse)

		got, err = repo.GetByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Zero(t, got.Uses)
		require.ErrorIs(t, repo.RedeemUsage(ctx, "missing", "dave", o3.ID), discount.ErrNotFound)
	})

	t.Run("Orders", func(t *testing.T) {
		repo := NewOrderRepository(db)
		o := placeOrder(t, db, "dave", p)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "dave", got.CustomerID)
		assert.Equal(t, "13.00 USD", got.TotalAmount().String())
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

		_, err = repo.Get(ctx, "missing")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("WithinTxRollsBack", func(t *testing.T) {
		repo := NewOrderRepository(db)
		var id string
		errBoom := errors.New("boom")
		err := db.WithinTx(ctx, func(ctx context.Context) error {
			price, _ := p.UnitPrice()
			o := &order.Order{ID: uuid.New().String(), CustomerID: "erin", Basket: lineitem.NewBasket(money.USD)}
			require.NoError(t, o.Add(lineitem.Item{ProductID: p.ID, Quantity: 1, UnitPrice: price}))
			id = o.ID
			if err := repo.Create(ctx, o); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, err = repo.Get(ctx, id)
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("Payments", func(t *testing.T) {
		repo := NewPaymentRepository(db)
		o := placeOrder(t, db, "frank", p)
		now := time.Now().UTC().Truncate(time.Microsecond)

		pay, err := payment.NewPayPalPayment(o.ID, o.TotalWithDiscount(), "tx-1",
			payment.PayPalDetails{Email: "frank@example.com", PayerID: "PAYER1"}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, pay.Snapshot()))

		stale := pay.Snapshot()
		require.NoError(t, pay.UpdateFromGateway("COMPLETED", "cap-1", now.Add(time.Second)))
		require.NoError(t, repo.Save(ctx, pay.Snapshot(), payment.StatusProcessing))
		require.NoError(t, pay.RequestRefund(decimal.NewFromInt(5), "damaged", now.Add(2*time.Second)))
		require.NoError(t, repo.Save(ctx, pay.Snapshot(), payment.StatusSucceeded))

		loser, err := payment.Restore(stale)
		require.NoError(t, err)
		require.NoError(t, loser.MarkAsFailed("declined", now.Add(time.Second)))
		require.ErrorIs(t, repo.Save(ctx, loser.Snapshot(), payment.StatusProcessing), payment.ErrIllegalTransition,
			"status moved on since it was read")
		require.ErrorIs(t, repo.Save(ctx, func() payment.Snapshot {
			s := loser.Snapshot()
			s.ID = "missing"
			return s
		}(), payment.StatusProcessing), payment.ErrNotFound)

		s, err := repo.Get(ctx, pay.ID())
		require.NoError(t, err)
		restored, err := payment.Restore(s)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusRefundRequested, restored.Status())
		assert.Equal(t, payment.PayPalDetails{Email: "frank@example.com", PayerID: "PAYER1"}, restored.Details())
		assert.True(t, restored.RefundAmount().Decimal.Equal(decimal.NewFromInt(5)))
		want, got := pay.History(), restored.History()
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID)
			assert.Equal(t, want[i].Status, got[i].Status)
			assert.Equal(t, want[i].Reference, got[i].Reference)
			assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		}

		_, err = repo.Get(ctx, "missing")
		require.ErrorIs(t, err, payment.ErrNotFound)
	})

	t.Run("PaymentHistoryByTime", func(t *testing.T) {
		repo := NewPaymentRepository(db)
		o := placeOrder(t, db, "grace", p)
		now := time.Now().UTC().Truncate(time.Microsecond)

		pay, err := payment.NewPayPalPayment(o.ID, o.TotalWithDiscount(), "tx-2",
			payment.PayPalDetails{Email: "grace@example.com", PayerID: "PAYER2"}, now)
		require.NoError(t, err)
		s := pay.Snapshot()
		s.History[0].ID = "7ZZZZZZZZZZZZZZZZZZZZZZZZZ"
		s.Status = payment.StatusSucceeded
		s.History = append(s.History, payment.StatusChange{
			ID:        "00000000000000000000000000",
			Status:    payment.StatusSucceeded,
			Timestamp: now.Add(time.Second),
		})
		require.NoError(t, repo.Create(ctx, s))

		got, err := repo.Get(ctx, pay.ID())
		require.NoError(t, err)
		require.Len(t, got.History, 2)
		assert.Equal(t, payment.StatusProcessing, got.History[0].Status)
		assert.Equal(t, payment.StatusSucceeded, got.History[1].Status)
	})
}
