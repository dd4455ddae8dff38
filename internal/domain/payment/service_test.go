package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/ecomify/internal/domain/money"
)

// mockRepo stores snapshots in memory. When readers is set, Get waits until
// that many callers have read before returning.
type mockRepo struct {
	mu      sync.Mutex
	byID    map[string]Snapshot
	saved   []Snapshot
	saveErr error
	readers *sync.WaitGroup
}

func (m *mockRepo) Create(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.byID[id]
	m.mu.Unlock()
	if m.readers != nil {
		m.readers.Done()
		m.readers.Wait()
	}
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) Save(_ context.Context, s Snapshot, prev Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cur, ok := m.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != prev {
		return ErrIllegalTransition
	}
	m.byID[s.ID] = s
	m.saved = append(m.saved, s)
	return nil
}

type mockOrders struct {
	amount money.Money
	err    error
}

func (m *mockOrders) PayableAmount(_ context.Context, _ string) (money.Money, error) {
	return m.amount, m.err
}

type mockPublisher struct {
	events []StatusChanged
	err    error
}

func (m *mockPublisher) PublishStatusChanged(_ context.Context, e StatusChanged) error {
	m.events = append(m.events, e)
	return m.err
}

func newTestService(t *testing.T, orders Orders, pub Publisher) (*Service, *mockRepo) {
	t.Helper()
	repo := &mockRepo{byID: map[string]Snapshot{}}
	svc, err := NewService(repo, orders, pub, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func TestService_CreateAndTransition(t *testing.T) {
	pub := &mockPublisher{}
	svc, repo := newTestService(t, &mockOrders{amount: money.MustNew("100", money.USD)}, pub)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{OrderID: "o1", TransactionID: "tx", Details: card})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, p.Status())
	require.Len(t, pub.events, 1)
	assert.Equal(t, StatusProcessing, pub.events[0].Change.Status)

	p, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: ActionGatewayUpdate, GatewayStatus: "approved", Reference: "GW-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, p.Status())
	require.Len(t, repo.saved, 1)
	assert.Len(t, repo.saved[0].History, 2)

	_, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: ActionRequestRefund, Amount: decimal.NewFromInt(150)})
	require.ErrorIs(t, err, ErrRefundExceedsAmount)
	assert.Len(t, repo.saved, 1, "failed transition is not saved")

	p, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: ActionRequestRefund, Amount: decimal.NewFromInt(30), Reference: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, StatusRefundRequested, p.Status())

	require.Len(t, pub.events, 3)
	last := pub.events[2]
	assert.Equal(t, StatusSucceeded, last.From)
	assert.Equal(t, StatusRefundRequested, last.Change.Status)
	assert.Equal(t, "damaged", last.Change.Reference)
}

func TestService_Create_Errors(t *testing.T) {
	orderErr := errors.New("order lookup failed")
	svc, _ := newTestService(t, &mockOrders{err: orderErr}, nil)
	_, err := svc.Create(context.Background(), CreateRequest{OrderID: "o1", Details: card})
	require.ErrorIs(t, err, orderErr)

	svc, _ = newTestService(t, &mockOrders{amount: money.MustNew("5", money.USD)}, nil)
	_, err = svc.Create(context.Background(), CreateRequest{OrderID: "o1"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestService_Transition_Errors(t *testing.T) {
	svc, repo := newTestService(t, &mockOrders{amount: money.MustNew("5", money.USD)}, &mockPublisher{err: errors.New("broker down")})
	ctx := context.Background()

	_, err := svc.Transition(ctx, "missing", TransitionRequest{Action: ActionSucceed})
	require.ErrorIs(t, err, ErrNotFound)

	p, err := svc.Create(ctx, CreateRequest{OrderID: "o1", Details: paypal})
	require.NoError(t, err, "publish failures are not returned")

	_, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: Action(99)})
	require.ErrorIs(t, err, ErrInvalid)

	saveErr := errors.New("disk full")
	repo.saveErr = saveErr
	_, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: ActionCancel})
	require.ErrorIs(t, err, saveErr)
}

func TestService_Transition_ConcurrentSucceed(t *testing.T) {
	svc, repo := newTestService(t, &mockOrders{amount: money.MustNew("20", money.USD)}, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{OrderID: "o1", TransactionID: "tx", Details: card})
	require.NoError(t, err)

	const callers = 2
	repo.readers = &sync.WaitGroup{}
	repo.readers.Add(callers)

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Transition(ctx, p.ID(), TransitionRequest{
				Action:    ActionSucceed,
				Reference: fmt.Sprintf("callback-%d", i),
			})
		}()
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrIllegalTransition)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one caller wins")

	stored := repo.byID[p.ID()]
	assert.Equal(t, StatusSucceeded, stored.Status)
	require.Len(t, stored.History, 2)
	assert.Equal(t, StatusProcessing, stored.History[0].Status)
	assert.Equal(t, StatusSucceeded, stored.History[1].Status)
	assert.Len(t, repo.saved, 1)
}

func TestService_Transition_StaleStatus(t *testing.T) {
	svc, repo := newTestService(t, &mockOrders{amount: money.MustNew("20", money.USD)}, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateRequest{OrderID: "o1", TransactionID: "tx", Details: card})
	require.NoError(t, err)

	stale := p.Snapshot()
	require.NoError(t, p.MarkAsFailed("declined", testNow))
	require.NoError(t, repo.Save(ctx, p.Snapshot(), StatusProcessing))

	require.ErrorIs(t, repo.Save(ctx, stale, StatusProcessing), ErrIllegalTransition)
	_, err = svc.Transition(ctx, p.ID(), TransitionRequest{Action: ActionSucceed})
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StatusFailed, repo.byID[p.ID()].Status)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Request_Refund")
	require.NoError(t, err)
	assert.Equal(t, ActionRequestRefund, a)

	_, err = ParseAction("explode")
	require.ErrorIs(t, err, ErrInvalid)
}
