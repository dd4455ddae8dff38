package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byID      map[string]Snapshot
	byCode    map[string]Snapshot
	usages    int
	recent    []Snapshot
	err       error
	fetched   []string
	gotCode   string
	gotSince  time.Time
	usagesErr error
}

func newMockRepo(snaps ...Snapshot) *mockRepo {
	m := &mockRepo{byID: map[string]Snapshot{}, byCode: map[string]Snapshot{}}
	for _, s := range snaps {
		m.byID[s.ID] = s
		if s.Code != "" {
			m.byCode[s.Code] = s
		}
	}
	return m
}

func (m *mockRepo) GetByID(_ context.Context, id string) (Snapshot, error) {
	m.fetched = append(m.fetched, id)
	if m.err != nil {
		return Snapshot{}, m.err
	}
	s, ok := m.byID[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (Snapshot, error) {
	m.gotCode = code
	if m.err != nil {
		return Snapshot{}, m.err
	}
	s, ok := m.byCode[code]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) UserUsages(_ context.Context, _, _ string) (int, error) {
	return m.usages, m.usagesErr
}

func (m *mockRepo) RecentByCustomer(_ context.Context, _ string, since time.Time) ([]Snapshot, error) {
	m.gotSince = since
	return m.recent, nil
}

func newTestStrategies(repo Repository) Strategies {
	s := NewStrategies(repo, DefaultPolicy())
	clock := func() time.Time { return testNow }
	s.Fixed.now = clock
	s.Percentage.now = clock
	s.Coupon.now = clock
	return s
}

func activeSnap(id string, p Params) Snapshot {
	p.ValidFrom = testNow.Add(-24 * time.Hour)
	p.ValidTo = testNow.Add(24 * time.Hour)
	if p.MaxUses == 0 {
		p.MaxUses = 100
	}
	if p.MaxUsesPerUser == 0 {
		p.MaxUsesPerUser = 1
	}
	return Snapshot{ID: id, Params: p, Active: true, CreatedAt: p.ValidFrom}
}

func fixedSnap(id, amount string) Snapshot {
	return activeSnap(id, Params{Kind: KindFixed, FixedAmount: nullDec(amount)})
}

func percentSnap(id, fraction string) Snapshot {
	return activeSnap(id, Params{Kind: KindPercentage, Percentage: nullDec(fraction)})
}

func couponSnap(id, code, amount string) Snapshot {
	return activeSnap(id, Params{Kind: KindCoupon, Code: code, FixedAmount: nullDec(amount)})
}

func TestFixedStrategy_Apply(t *testing.T) {
	tests := []struct {
		name       string
		repo       *mockRepo
		order      string
		req        ApplyRequest
		want       string
		wantErr    error
		wantFields []string
	}{
		{
			name:  "amount capped at order",
			repo:  newMockRepo(fixedSnap("d1", "10")),
			order: "5",
			req:   ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			want:  "5",
		},
		{
			name:  "full amount below order",
			repo:  newMockRepo(fixedSnap("d1", "10")),
			order: "42",
			req:   ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			want:  "10",
		},
		{
			name:       "request shape errors reported together",
			repo:       newMockRepo(),
			order:      "0",
			req:        ApplyRequest{Percentage: nullDec("10"), CouponCode: "X"},
			wantErr:    ErrInvalidRequest,
			wantFields: []string{"order_amount", "customer_id", "discount_id", "fixed_amount", "percentage", "coupon_code"},
		},
		{
			name:    "unknown discount",
			repo:    newMockRepo(),
			order:   "50",
			req:     ApplyRequest{DiscountID: "missing", FixedAmount: nullDec("10"), CustomerID: "c1"},
			wantErr: ErrNotFound,
		},
		{
			name:    "wrong kind",
			repo:    newMockRepo(percentSnap("d1", "0.1")),
			order:   "50",
			req:     ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			wantErr: ErrKindMismatch,
		},
		{
			name:    "amount differs from stored",
			repo:    newMockRepo(fixedSnap("d1", "10")),
			order:   "50",
			req:     ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("20"), CustomerID: "c1"},
			wantErr: ErrRequestMismatch,
		},
		{
			name: "user already redeemed",
			repo: func() *mockRepo {
				m := newMockRepo(fixedSnap("d1", "10"))
				m.usages = 1
				return m
			}(),
			order:   "50",
			req:     ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			wantErr: ErrNotValidForUse,
		},
		{
			name: "too many recent discounts",
			repo: func() *mockRepo {
				m := newMockRepo(fixedSnap("d1", "10"))
				m.recent = make([]Snapshot, 9)
				return m
			}(),
			order:   "50",
			req:     ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			wantErr: ErrTooManyRecentDiscounts,
		},
		{
			name: "eight recent discounts still allowed",
			repo: func() *mockRepo {
				m := newMockRepo(fixedSnap("d1", "10"))
				m.recent = make([]Snapshot, 8)
				return m
			}(),
			order: "50",
			req:   ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"},
			want:  "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStrategies(tt.repo)
			got, err := s.Fixed.Apply(context.Background(), decimal.RequireFromString(tt.order), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				if tt.wantFields != nil {
					assert.Equal(t, tt.wantFields, fieldNames(t, err))
				}
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFixedStrategy_RecentWindow(t *testing.T) {
	repo := newMockRepo(fixedSnap("d1", "10"))
	s := newTestStrategies(repo)

	_, err := s.Fixed.Apply(context.Background(), decimal.NewFromInt(50),
		ApplyRequest{DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-7*24*time.Hour), repo.gotSince)
}

func TestPercentageStrategy_Apply(t *testing.T) {
	tests := []struct {
		name    string
		repo    *mockRepo
		req     ApplyRequest
		want    string
		wantErr error
	}{
		{
			name: "percent converted to fraction",
			repo: newMockRepo(percentSnap("d1", "0.15")),
			req:  ApplyRequest{DiscountID: "d1", Percentage: nullDec("15"), CustomerID: "c1"},
			want: "15",
		},
		{
			name:    "customer above cap",
			repo:    newMockRepo(percentSnap("d1", "0.6")),
			req:     ApplyRequest{DiscountID: "d1", Percentage: nullDec("60"), CustomerID: "c1"},
			wantErr: ErrPercentageTooHigh,
		},
		{
			name: "admin above cap",
			repo: newMockRepo(percentSnap("d1", "0.6")),
			req:  ApplyRequest{DiscountID: "d1", Percentage: nullDec("60"), CustomerID: "c1", IsAdmin: true},
			want: "60",
		},
		{
			name:    "percent above hundred",
			repo:    newMockRepo(),
			req:     ApplyRequest{DiscountID: "d1", Percentage: nullDec("120"), CustomerID: "c1", IsAdmin: true},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "more than three recent discounts",
			repo: func() *mockRepo {
				m := newMockRepo(percentSnap("d1", "0.15"))
				m.recent = make([]Snapshot, 4)
				return m
			}(),
			req:     ApplyRequest{DiscountID: "d1", Percentage: nullDec("15"), CustomerID: "c1"},
			wantErr: ErrTooManyRecentDiscounts,
		},
		{
			name:    "percent differs from stored",
			repo:    newMockRepo(percentSnap("d1", "0.15")),
			req:     ApplyRequest{DiscountID: "d1", Percentage: nullDec("20"), CustomerID: "c1"},
			wantErr: ErrRequestMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStrategies(tt.repo)
			got, err := s.Percentage.Apply(context.Background(), decimal.NewFromInt(100), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestPercentageStrategy_RoundsToCents(t *testing.T) {
	s := newTestStrategies(newMockRepo(percentSnap("d1", "0.15")))
	got, err := s.Percentage.Apply(context.Background(), decimal.RequireFromString("33.33"),
		ApplyRequest{DiscountID: "d1", Percentage: nullDec("15"), CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "5", got.String())
}

func TestCouponStrategy_Apply(t *testing.T) {
	repo := newMockRepo(couponSnap("d1", "SAVE5", "5"))
	s := newTestStrategies(repo)

	got, err := s.Coupon.Apply(context.Background(), decimal.NewFromInt(30),
		ApplyRequest{CouponCode: " save5 ", CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "SAVE5", repo.gotCode)
	assert.True(t, decimal.NewFromInt(5).Equal(got))

	_, err = s.Coupon.Apply(context.Background(), decimal.NewFromInt(30),
		ApplyRequest{CouponCode: "NOPE", CustomerID: "c1"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Coupon.Apply(context.Background(), decimal.NewFromInt(30),
		ApplyRequest{CustomerID: "c1"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestApply_RepositoryErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repo := newMockRepo()
	repo.err = boom
	s := newTestStrategies(repo)

	_, err := s.Coupon.Apply(context.Background(), decimal.NewFromInt(30),
		ApplyRequest{CouponCode: "SAVE5", CustomerID: "c1"})
	require.ErrorIs(t, err, boom)
}

func TestStrategies_For(t *testing.T) {
	s := newTestStrategies(newMockRepo())
	for _, k := range []Kind{KindFixed, KindPercentage, KindCoupon} {
		assert.Equal(t, k, s.For(k).Kind())
	}
	assert.Panics(t, func() { s.For(Kind(0)) })
}
