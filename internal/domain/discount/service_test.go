package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

type mockStore struct {
	created     []Snapshot
	deactivated []string
	redeemErr   error
	redeemed    [][3]string
}

func (m *mockStore) Create(_ context.Context, s Snapshot) error {
	m.created = append(m.created, s)
	return nil
}

func (m *mockStore) Deactivate(_ context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockStore) RedeemUsage(_ context.Context, discountID, customerID, orderID string) error {
	if m.redeemErr != nil {
		return m.redeemErr
	}
	m.redeemed = append(m.redeemed, [3]string{discountID, customerID, orderID})
	return nil
}

func newTestService(t *testing.T, repo *mockRepo, store *mockStore) *Service {
	t.Helper()
	svc, err := NewService(repo, store, newTestStrategies(repo), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestService_Create(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, newMockRepo(), store)

	d, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, d.ID(), store.created[0].ID)

	p := validParams()
	p.MaxUses = 0
	_, err = svc.Create(context.Background(), p)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, store.created, 1)
}

func TestService_Deactivate(t *testing.T) {
	inactive := fixedSnap("off", "5")
	inactive.Active = false
	store := &mockStore{}
	svc := newTestService(t, newMockRepo(fixedSnap("on", "5"), inactive), store)

	d, err := svc.Deactivate(context.Background(), "on")
	require.NoError(t, err)
	assert.False(t, d.IsActive())

	_, err = svc.Deactivate(context.Background(), "off")
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, store.deactivated)

	_, err = svc.Deactivate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Apply(t *testing.T) {
	svc := newTestService(t, newMockRepo(fixedSnap("d1", "10")), &mockStore{})

	got, err := svc.Apply(context.Background(), decimal.NewFromInt(5),
		ApplyRequest{Kind: KindFixed, DiscountID: "d1", FixedAmount: nullDec("10"), CustomerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "5", got.String())

	_, err = svc.Apply(context.Background(), decimal.NewFromInt(5), ApplyRequest{CustomerID: "c1"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_CalculateTotal(t *testing.T) {
	svc := newTestService(t, newMockRepo(fixedSnap("a", "80"), fixedSnap("b", "30")), &mockStore{})

	got, err := svc.CalculateTotal(context.Background(), KindFixed, decimal.NewFromInt(100), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())

	_, err = svc.CalculateTotal(context.Background(), Kind(9), decimal.NewFromInt(100), []string{"a"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_Redeem(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, newMockRepo(), store)

	require.NoError(t, svc.Redeem(context.Background(), "d1", "c1", "o1"))
	assert.Equal(t, [][3]string{{"d1", "c1", "o1"}}, store.redeemed)

	store.redeemErr = ErrUsageLimitReached
	require.ErrorIs(t, svc.Redeem(context.Background(), "d1", "c1", "o2"), ErrUsageLimitReached)
}
