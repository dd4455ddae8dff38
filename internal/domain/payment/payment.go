// Package payment models a single payment and its status lifecycle.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
	"github.com/xenking/ecomify/internal/domain/money"
)

// Status is the lifecycle state of a payment.
type Status int

const (
	StatusProcessing Status = iota + 1
	StatusSucceeded
	StatusFailed
	StatusRefundRequested
	StatusRefunded
	StatusCancelled
	// StatusUnknown is the sink for gateway statuses with no mapping.
	StatusUnknown
)

var statusNames = map[Status]string{
	StatusProcessing:      "processing",
	StatusSucceeded:       "succeeded",
	StatusFailed:          "failed",
	StatusRefundRequested: "refund_requested",
	StatusRefunded:        "refunded",
	StatusCancelled:       "cancelled",
	StatusUnknown:         "unknown",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus parses the name returned by Status.String.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
		failure.FieldError{Field: "status", Message: "unknown status " + s})
}

var (
	ErrInvalid             = failure.Validation("payment.invalid", "invalid payment")
	ErrNotFound            = failure.NotFound("payment.not_found", "payment not found")
	ErrIllegalTransition   = failure.Conflict("payment.illegal_transition", "illegal payment status transition")
	ErrRefundExceedsAmount = failure.Conflict("payment.refund_exceeds_amount", "refund amount greater than payment amount")
)

// StatusChange is one entry of the payment history.
type StatusChange struct {
	ID        string
	Status    Status
	Timestamp time.Time
	Reference string
}

// Snapshot is the full persisted state of a payment.
type Snapshot struct {
	ID              string
	OrderID         string
	Amount          money.Money
	Method          Method
	TransactionID   string
	ProcessedAt     time.Time
	Status          Status
	GatewayResponse string
	RefundAmount    decimal.NullDecimal
	Details         Details
	History         []StatusChange
}

// Payment is a payment moving through its lifecycle. Every status change is
// appended to its history.
type Payment struct {
	s Snapshot
}

// NewCreditCardPayment starts a card payment in StatusProcessing.
func NewCreditCardPayment(orderID string, amount money.Money, transactionID string, d CreditCardDetails, now time.Time) (*Payment, error) {
	return New(orderID, amount, transactionID, d, now)
}

// NewPayPalPayment starts a PayPal payment in StatusProcessing.
func NewPayPalPayment(orderID string, amount money.Money, transactionID string, d PayPalDetails, now time.Time) (*Payment, error) {
	return New(orderID, amount, transactionID, d, now)
}

// New starts a payment for whichever method d describes.
func New(orderID string, amount money.Money, transactionID string, d Details, now time.Time) (*Payment, error) {
	var f failure.Fields
	if d == nil {
		f.Add("details", "required")
	} else {
		d.validate(&f)
	}
	f.Check(orderID != "", "order_id", "required")
	f.Check(amount.Amount().IsPositive(), "amount", "must be greater than zero")
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return nil, err
	}
	p := &Payment{s: Snapshot{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		Amount:        amount,
		Method:        d.Method(),
		TransactionID: transactionID,
		Details:       d,
	}}
	p.record(StatusProcessing, "created", now)
	return p, nil
}

// Restore rebuilds a payment from persisted state without touching its history.
func Restore(s Snapshot) (*Payment, error) {
	var f failure.Fields
	f.Check(s.ID != "", "id", "required")
	f.Check(s.OrderID != "", "order_id", "required")
	_, known := statusNames[s.Status]
	f.Check(known, "status", "unknown status")
	f.Check(s.Details != nil && s.Details.Method() == s.Method, "details", "must match the payment method")
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return nil, err
	}
	s.History = append([]StatusChange(nil), s.History...)
	return &Payment{s: s}, nil
}

// Snapshot returns a copy of the payment state.
func (p *Payment) Snapshot() Snapshot {
	s := p.s
	s.History = p.History()
	return s
}

func (p *Payment) ID() string { return p.s.ID }

func (p *Payment) OrderID() string { return p.s.OrderID }

func (p *Payment) Amount() money.Money { return p.s.Amount }

func (p *Payment) Method() Method { return p.s.Method }

func (p *Payment) Status() Status { return p.s.Status }

func (p *Payment) Details() Details { return p.s.Details }

func (p *Payment) TransactionID() string { return p.s.TransactionID }

func (p *Payment) ProcessedAt() time.Time { return p.s.ProcessedAt }

func (p *Payment) GatewayResponse() string { return p.s.GatewayResponse }

func (p *Payment) RefundAmount() decimal.NullDecimal { return p.s.RefundAmount }

// History returns a copy of the status history, oldest first.
func (p *Payment) History() []StatusChange {
	return append([]StatusChange(nil), p.s.History...)
}

func (p *Payment) record(status Status, reference string, at time.Time) {
	p.s.Status = status
	p.s.History = append(p.s.History, StatusChange{
		ID:        ulid.Make().String(),
		Status:    status,
		Timestamp: at.UTC(),
		Reference: reference,
	})
}

// Repository persists payments. Save stores the current status and any
// history entries not yet stored, but only while the stored status is still
// prev; otherwise it returns ErrIllegalTransition and stores nothing.
type Repository interface {
	Create(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	Save(ctx context.Context, s Snapshot, prev Status) error
}
