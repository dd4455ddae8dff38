package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// Service exposes discount administration, application and stacking.
type Service struct {
	repo       Repository
	store      Store
	strategies Strategies
	now        func() time.Time

	applied  metric.Int64Counter
	redeemed metric.Int64Counter
}

// NewService creates a discount Service. The meter records applications and
// redemptions per kind.
func NewService(repo Repository, store Store, strategies Strategies, meter metric.Meter) (*Service, error) {
	applied, err := meter.Int64Counter("discount.applied",
		metric.WithDescription("Successful single discount applications"))
	if err != nil {
		return nil, errors.Wrap(err, "applied counter")
	}
	redeemed, err := meter.Int64Counter("discount.redeemed",
		metric.WithDescription("Discount redemptions recorded on placed orders"))
	if err != nil {
		return nil, errors.Wrap(err, "redeemed counter")
	}
	return &Service{
		repo:       repo,
		store:      store,
		strategies: strategies,
		now:        time.Now,
		applied:    applied,
		redeemed:   redeemed,
	}, nil
}

// Create validates p and persists a new discount.
func (s *Service) Create(ctx context.Context, p Params) (*Discount, error) {
	d, err := Create(p, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, d.Snapshot()); err != nil {
		return nil, errors.Wrap(err, "create discount")
	}
	zctx.From(ctx).Info("Discount created",
		zap.String("discount_id", d.ID()),
		zap.Stringer("kind", d.Kind()),
	)
	return d, nil
}

// Get returns the discount with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Discount, error) {
	snap, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get discount %s", id)
	}
	return From(snap)
}

// Deactivate disables the discount. Deactivating an inactive discount is a no-op.
func (s *Service) Deactivate(ctx context.Context, id string) (*Discount, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsActive() {
		return d, nil
	}
	d.Deactivate()
	if err := s.store.Deactivate(ctx, id); err != nil {
		return nil, errors.Wrap(err, "deactivate discount")
	}
	zctx.From(ctx).Info("Discount deactivated", zap.String("discount_id", id))
	return d, nil
}

// Apply computes the value of a single discount for an order.
func (s *Service) Apply(ctx context.Context, orderAmount decimal.Decimal, req ApplyRequest) (decimal.Decimal, error) {
	if !req.Kind.Valid() {
		return decimal.Zero, failure.Validation(ErrInvalidRequest.Code, ErrInvalidRequest.Message,
			failure.FieldError{Field: "kind", Message: "unknown kind"})
	}
	amount, err := s.strategies.For(req.Kind).Apply(ctx, orderAmount, req)
	if err != nil {
		return decimal.Zero, err
	}
	s.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", req.Kind.String())))
	return amount, nil
}

// CalculateTotal stacks ids against cartAmount using the gate of kind.
func (s *Service) CalculateTotal(ctx context.Context, kind Kind, cartAmount decimal.Decimal, ids []string) (decimal.Decimal, error) {
	b, err := s.Stack(ctx, kind, cartAmount, ids)
	return b.Total, err
}

// Stack is CalculateTotal with the per-discount contributions.
func (s *Service) Stack(ctx context.Context, kind Kind, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	if !kind.Valid() {
		return Breakdown{}, failure.Validation(ErrInvalidRequest.Code, ErrInvalidRequest.Message,
			failure.FieldError{Field: "kind", Message: "unknown kind"})
	}
	return s.strategies.For(kind).Stack(ctx, cartAmount, ids)
}

// Checkout stacks ids for customerID the way PlaceOrder redeems them. Unlike
// Stack it enforces the validity window, the per-user cap and the
// recent-discount limit of the kind.
func (s *Service) Checkout(ctx context.Context, kind Kind, customerID string, cartAmount decimal.Decimal, ids []string) (Breakdown, error) {
	if !kind.Valid() {
		return Breakdown{}, failure.Validation(ErrInvalidRequest.Code, ErrInvalidRequest.Message,
			failure.FieldError{Field: "kind", Message: "unknown kind"})
	}
	return s.strategies.For(kind).Checkout(ctx, customerID, cartAmount, ids)
}

// Redeem records one use of the discount by customerID for orderID.
func (s *Service) Redeem(ctx context.Context, discountID, customerID, orderID string) error {
	if err := s.store.RedeemUsage(ctx, discountID, customerID, orderID); err != nil {
		return errors.Wrapf(err, "redeem discount %s", discountID)
	}
	s.redeemed.Add(ctx, 1)
	zctx.From(ctx).Debug("Discount redeemed",
		zap.String("discount_id", discountID),
		zap.String("customer_id", customerID),
		zap.String("order_id", orderID),
	)
	return nil
}
