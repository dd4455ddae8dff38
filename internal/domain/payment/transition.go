package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
)

func illegal(op string, from Status) error {
	return failure.Conflict(ErrIllegalTransition.Code,
		fmt.Sprintf("cannot %s a payment in status %s", op, from))
}

func (p *Payment) in(statuses ...Status) bool {
	for _, s := range statuses {
		if p.s.Status == s {
			return true
		}
	}
	return false
}

// MarkAsSucceeded settles the payment. ref is usually the gateway
// authorization code.
func (p *Payment) MarkAsSucceeded(ref string, at time.Time) error {
	if p.in(StatusSucceeded, StatusRefunded) {
		return illegal("succeed", p.s.Status)
	}
	p.s.ProcessedAt = at.UTC()
	p.record(StatusSucceeded, ref, at)
	return nil
}

// MarkAsFailed records a failed attempt.
func (p *Payment) MarkAsFailed(reason string, at time.Time) error {
	if p.in(StatusSucceeded, StatusRefunded) {
		return illegal("fail", p.s.Status)
	}
	p.s.GatewayResponse = reason
	p.record(StatusFailed, reason, at)
	return nil
}

// RequestRefund asks for amount to be returned to the payer. Only settled
// payments can be refunded, and never for more than was paid.
func (p *Payment) RequestRefund(amount decimal.Decimal, reason string, at time.Time) error {
	if !amount.IsPositive() {
		return failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	if p.s.Status != StatusSucceeded {
		return illegal("refund", p.s.Status)
	}
	if amount.GreaterThan(p.s.Amount.Amount()) {
		return ErrRefundExceedsAmount
	}
	p.s.RefundAmount = decimal.NewNullDecimal(amount)
	p.record(StatusRefundRequested, reason, at)
	return nil
}

// ConfirmRefund completes a requested refund.
func (p *Payment) ConfirmRefund(gatewayRef string, at time.Time) error {
	if p.s.Status != StatusRefundRequested {
		return illegal("confirm refund of", p.s.Status)
	}
	p.record(StatusRefunded, gatewayRef, at)
	return nil
}

// MarkAsCancelled cancels the payment.
func (p *Payment) MarkAsCancelled(reason string, at time.Time) error {
	if p.in(StatusRefunded, StatusCancelled) {
		return illegal("cancel", p.s.Status)
	}
	p.record(StatusCancelled, reason, at)
	return nil
}

// MarkAsRefunded records a refund performed outside the request flow.
func (p *Payment) MarkAsRefunded(reason string, at time.Time) error {
	if p.in(StatusRefunded, StatusCancelled) {
		return illegal("refund", p.s.Status)
	}
	p.record(StatusRefunded, reason, at)
	return nil
}

// UpdateFromGateway applies a status string reported by the payment gateway.
// Refunded payments never change, and a settled payment cannot fail.
func (p *Payment) UpdateFromGateway(gatewayStatus, ref string, at time.Time) error {
	target := GatewayStatus(p.s.Method, gatewayStatus)
	if p.s.Status == StatusRefunded || (p.s.Status == StatusSucceeded && target == StatusFailed) {
		return failure.Conflict(ErrIllegalTransition.Code,
			fmt.Sprintf("gateway status %q not allowed in status %s", gatewayStatus, p.s.Status))
	}
	if target == StatusSucceeded {
		p.s.ProcessedAt = at.UTC()
	}
	p.s.GatewayResponse = gatewayStatus
	p.record(target, ref, at)
	return nil
}

var (
	creditCardVocabulary = map[string]Status{
		"approved":  StatusSucceeded,
		"pending":   StatusProcessing,
		"declined":  StatusFailed,
		"refunded":  StatusRefunded,
		"cancelled": StatusCancelled,
	}
	payPalVocabulary = map[string]Status{
		"completed": StatusSucceeded,
		"pending":   StatusProcessing,
		"failed":    StatusFailed,
		"refunded":  StatusRefunded,
		"cancelled": StatusCancelled,
	}
)

// GatewayStatus maps a gateway status string for method to a Status.
// Matching is case-insensitive; unmapped strings yield StatusUnknown.
func GatewayStatus(method Method, gatewayStatus string) Status {
	vocabulary := creditCardVocabulary
	if method == MethodPayPal {
		vocabulary = payPalVocabulary
	}
	if s, ok := vocabulary[strings.ToLower(strings.TrimSpace(gatewayStatus))]; ok {
		return s
	}
	return StatusUnknown
}
