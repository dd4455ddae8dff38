package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/money"
)

// StatusChanged is published after a status change is persisted.
type StatusChanged struct {
	PaymentID string
	OrderID   string
	Method    Method
	From      Status
	Change    StatusChange
}

// Publisher delivers payment events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, e StatusChanged) error
}

// Orders resolves the amount due for an order.
type Orders interface {
	PayableAmount(ctx context.Context, orderID string) (money.Money, error)
}

// Action names a status transition.
type Action int

const (
	ActionSucceed Action = iota + 1
	ActionFail
	ActionRequestRefund
	ActionConfirmRefund
	ActionCancel
	ActionRefund
	ActionGatewayUpdate
)

var actionNames = map[string]Action{
	"succeed":        ActionSucceed,
	"fail":           ActionFail,
	"request_refund": ActionRequestRefund,
	"confirm_refund": ActionConfirmRefund,
	"cancel":         ActionCancel,
	"refund":         ActionRefund,
	"gateway_update": ActionGatewayUpdate,
}

// ParseAction parses an action name such as "request_refund".
func ParseAction(s string) (Action, error) {
	if a, ok := actionNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return a, nil
	}
	return 0, failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
		failure.FieldError{Field: "action", Message: "unknown action " + s})
}

// TransitionRequest is one status change. Amount is used only by
// ActionRequestRefund, GatewayStatus only by ActionGatewayUpdate.
type TransitionRequest struct {
	Action        Action
	Reference     string
	Amount        decimal.Decimal
	GatewayStatus string
}

// CreateRequest starts a payment for an order. The amount is the order's
// payable total.
type CreateRequest struct {
	OrderID       string
	TransactionID string
	Details       Details
}

// Service runs payments through their lifecycle and persists each change.
type Service struct {
	repo   Repository
	orders Orders
	events Publisher
	now    func() time.Time

	transitions metric.Int64Counter
}

// NewService creates a payment Service.
func NewService(repo Repository, orders Orders, events Publisher, meter metric.Meter) (*Service, error) {
	transitions, err := meter.Int64Counter("payment.transitions",
		metric.WithDescription("Payment status changes by target status"))
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return &Service{
		repo:        repo,
		orders:      orders,
		events:      events,
		now:         time.Now,
		transitions: transitions,
	}, nil
}

// Create starts a new payment in StatusProcessing.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	amount, err := s.orders.PayableAmount(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "payable amount")
	}

	p, err := New(req.OrderID, amount, req.TransactionID, req.Details, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p.Snapshot()); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	zctx.From(ctx).Info("Payment created",
		zap.String("payment_id", p.ID()),
		zap.String("order_id", p.OrderID()),
		zap.Stringer("method", p.Method()),
		zap.Stringer("amount", p.Amount()),
	)
	s.publish(ctx, p, 0)
	return p, nil
}

// Get returns the payment with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get payment %s", id)
	}
	return Restore(snap)
}

// Transition applies req to the payment and persists the new status. A
// concurrent transition of the same payment that is stored first makes this
// one fail with ErrIllegalTransition.
func (s *Service) Transition(ctx context.Context, id string, req TransitionRequest) (*Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := p.Status()
	at := s.now()

	if err := apply(p, req, at); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p.Snapshot(), from); err != nil {
		return nil, errors.Wrap(err, "save payment")
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", p.Status().String())))
	zctx.From(ctx).Info("Payment status changed",
		zap.String("payment_id", p.ID()),
		zap.Stringer("from", from),
		zap.Stringer("to", p.Status()),
	)
	s.publish(ctx, p, from)
	return p, nil
}

func apply(p *Payment, req TransitionRequest, at time.Time) error {
	switch req.Action {
	case ActionSucceed:
		return p.MarkAsSucceeded(req.Reference, at)
	case ActionFail:
		return p.MarkAsFailed(req.Reference, at)
	case ActionRequestRefund:
		return p.RequestRefund(req.Amount, req.Reference, at)
	case ActionConfirmRefund:
		return p.ConfirmRefund(req.Reference, at)
	case ActionCancel:
		return p.MarkAsCancelled(req.Reference, at)
	case ActionRefund:
		return p.MarkAsRefunded(req.Reference, at)
	case ActionGatewayUpdate:
		return p.UpdateFromGateway(req.GatewayStatus, req.Reference, at)
	default:
		return failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "action", Message: fmt.Sprintf("unknown action %d", int(req.Action))})
	}
}

// publish sends the last history entry. The change is already stored, so a
// delivery failure is only logged.
func (s *Service) publish(ctx context.Context, p *Payment, from Status) {
	history := p.s.History
	if s.events == nil || len(history) == 0 {
		return
	}
	e := StatusChanged{
		PaymentID: p.ID(),
		OrderID:   p.OrderID(),
		Method:    p.Method(),
		From:      from,
		Change:    history[len(history)-1],
	}
	if err := s.events.PublishStatusChanged(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish payment event failed",
			zap.String("payment_id", p.ID()),
			zap.Error(err),
		)
	}
}
