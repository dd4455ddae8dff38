package discount

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTotal_StacksAgainstRemaining(t *testing.T) {
	repo := newMockRepo(
		percentSnap("a", "0.8"),
		fixedSnap("b", "30"),
		fixedSnap("c", "5"),
	)
	s := newTestStrategies(repo)

	total, err := s.Fixed.CalculateTotal(context.Background(), decimal.NewFromInt(100), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(total), "got %s", total)
	assert.Equal(t, []string{"a", "b"}, repo.fetched, "stops once the cart is covered")
}

func TestCalculateTotal_OrderMatters(t *testing.T) {
	repo := newMockRepo(percentSnap("half", "0.5"), fixedSnap("ten", "10"))
	s := newTestStrategies(repo)
	cart := decimal.NewFromInt(100)

	first, err := s.Percentage.CalculateTotal(context.Background(), cart, []string{"half", "ten"})
	require.NoError(t, err)
	assert.Equal(t, "60", first.String())

	second, err := s.Percentage.CalculateTotal(context.Background(), cart, []string{"ten", "half"})
	require.NoError(t, err)
	assert.Equal(t, "55", second.String())
}

func TestCalculateTotal_Empty(t *testing.T) {
	repo := newMockRepo()
	s := newTestStrategies(repo)

	total, err := s.Coupon.CalculateTotal(context.Background(), decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.Empty(t, repo.fetched)
}

func TestCalculateTotal_DuplicatesCountOnce(t *testing.T) {
	repo := newMockRepo(fixedSnap("d1", "10"))
	s := newTestStrategies(repo)

	total, err := s.Fixed.CalculateTotal(context.Background(), decimal.NewFromInt(100), []string{"d1", "d1", "d1"})
	require.NoError(t, err)
	assert.Equal(t, "10", total.String())
	assert.Equal(t, []string{"d1"}, repo.fetched)
}

func TestCalculateTotal_Failures(t *testing.T) {
	minOrder := fixedSnap("min", "5")
	minOrder.MinOrderAmount = decimal.NewFromInt(200)

	expired := couponSnap("old", "OLD", "5")
	expired.ValidTo = testNow.Add(-time.Minute)

	capped := couponSnap("capped", "CAP", "5")
	capped.Uses = capped.MaxUses

	broken := fixedSnap("broken", "5")
	broken.MaxUses = 0

	repo := newMockRepo(fixedSnap("ok", "5"), minOrder, expired, capped, broken)
	s := newTestStrategies(repo)
	cart := decimal.NewFromInt(100)

	tests := []struct {
		name     string
		strategy Strategy
		ids      []string
		wantErr  error
	}{
		{name: "missing id aborts", strategy: s.Fixed, ids: []string{"ok", "missing"}, wantErr: ErrNotFound},
		{name: "minimum order on fixed", strategy: s.Fixed, ids: []string{"ok", "min"}, wantErr: ErrMinOrderNotReached},
		{name: "minimum order on percentage", strategy: s.Percentage, ids: []string{"min"}, wantErr: ErrMinOrderNotReached},
		{name: "coupon checks full validity", strategy: s.Coupon, ids: []string{"ok", "old"}, wantErr: ErrNotValidForUse},
		{name: "coupon at usage cap", strategy: s.Coupon, ids: []string{"capped"}, wantErr: ErrNotValidForUse},
		{name: "invalid persisted state", strategy: s.Fixed, ids: []string{"broken"}, wantErr: ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, err := tt.strategy.CalculateTotal(context.Background(), cart, tt.ids)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, total.IsZero(), "no partial total on failure")
		})
	}
}

func TestCalculateTotal_FixedIgnoresValidityWindow(t *testing.T) {
	expired := fixedSnap("old", "5")
	expired.ValidTo = testNow.Add(-time.Minute)
	s := newTestStrategies(newMockRepo(expired))

	total, err := s.Fixed.CalculateTotal(context.Background(), decimal.NewFromInt(100), []string{"old"})
	require.NoError(t, err)
	assert.Equal(t, "5", total.String())
}

func TestCalculateTotal_Cancelled(t *testing.T) {
	repo := newMockRepo(fixedSnap("d1", "10"))
	s := newTestStrategies(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	total, err := s.Fixed.CalculateTotal(ctx, decimal.NewFromInt(100), []string{"d1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, total.IsZero())
	assert.Empty(t, repo.fetched)
}

func TestCalculateTotal_NeverExceedsCart(t *testing.T) {
	var snaps []Snapshot
	var ids []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("f%d", i)
		snaps = append(snaps, fixedSnap(id, fmt.Sprintf("%d.37", 3+i*7)))
		ids = append(ids, id)
		pid := fmt.Sprintf("p%d", i)
		snaps = append(snaps, percentSnap(pid, fmt.Sprintf("0.%d5", i+1)))
		ids = append(ids, pid)
	}
	s := newTestStrategies(newMockRepo(snaps...))

	for cents := int64(0); cents <= 20000; cents += 113 {
		cart := decimal.New(cents, -2)
		total, err := s.Fixed.CalculateTotal(context.Background(), cart, ids)
		require.NoError(t, err)
		assert.False(t, total.IsNegative(), "cart %s", cart)
		assert.True(t, total.LessThanOrEqual(cart), "cart %s total %s", cart, total)
	}
}

func TestStack_Breakdown(t *testing.T) {
	s := newTestStrategies(newMockRepo(
		percentSnap("a", "0.8"),
		fixedSnap("zero", "0.001"),
		fixedSnap("b", "30"),
	))

	b, err := s.Fixed.Stack(context.Background(), decimal.NewFromInt(100), []string{"a", "zero", "b"})
	require.NoError(t, err)
	assert.Equal(t, "100", b.Total.String())
	require.Len(t, b.Applied, 2, "increments rounding to zero are skipped")
	assert.Equal(t, "a", b.Applied[0].DiscountID)
	assert.Equal(t, "80", b.Applied[0].Amount.String())
	assert.Equal(t, "b", b.Applied[1].DiscountID)
	assert.Equal(t, "20", b.Applied[1].Amount.String())
}

func TestCheckout(t *testing.T) {
	expired := fixedSnap("old", "5")
	expired.ValidTo = testNow.Add(-time.Minute)
	cart := decimal.NewFromInt(100)

	tests := []struct {
		name    string
		kind    Kind
		repo    *mockRepo
		ids     []string
		want    string
		wantErr error
	}{
		{name: "Fixed", kind: KindFixed, repo: newMockRepo(fixedSnap("a", "10"), fixedSnap("b", "5")), ids: []string{"a", "b"}, want: "15"},
		{name: "ExpiredFixed", kind: KindFixed, repo: newMockRepo(fixedSnap("a", "10"), expired), ids: []string{"a", "old"}, wantErr: ErrNotValidForUse},
		{name: "UserCapReached", kind: KindPercentage, repo: func() *mockRepo {
			r := newMockRepo(percentSnap("p", "0.1"))
			r.usages = 1
			return r
		}(), ids: []string{"p"}, wantErr: ErrNotValidForUse},
		{name: "FixedRecentLimit", kind: KindFixed, repo: func() *mockRepo {
			r := newMockRepo(fixedSnap("a", "10"))
			r.recent = make([]Snapshot, DefaultPolicy().FixedMaxRecent+1)
			return r
		}(), ids: []string{"a"}, wantErr: ErrTooManyRecentDiscounts},
		{name: "PercentageRecentLimit", kind: KindPercentage, repo: func() *mockRepo {
			r := newMockRepo(percentSnap("p", "0.1"))
			r.recent = make([]Snapshot, DefaultPolicy().PercentageMaxRecent+1)
			return r
		}(), ids: []string{"p"}, wantErr: ErrTooManyRecentDiscounts},
		{name: "CouponIgnoresRecent", kind: KindCoupon, repo: func() *mockRepo {
			r := newMockRepo(couponSnap("c", "SAVE", "7"))
			r.recent = make([]Snapshot, 50)
			return r
		}(), ids: []string{"c"}, want: "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.repo, &mockStore{})
			b, err := svc.Checkout(context.Background(), tt.kind, "c1", cart, tt.ids)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, b.Total.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Total.String())
		})
	}
}

func TestCheckout_RecentWindowPerKind(t *testing.T) {
	repo := newMockRepo(fixedSnap("a", "10"), percentSnap("p", "0.1"))
	s := newTestStrategies(repo)
	ctx := context.Background()

	_, err := s.Fixed.Checkout(ctx, "c1", decimal.NewFromInt(50), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-7*24*time.Hour), repo.gotSince)

	_, err = s.Percentage.Checkout(ctx, "c1", decimal.NewFromInt(50), []string{"p"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), repo.gotSince)
}
