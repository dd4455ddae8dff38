package events

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/payment"
)

var _ payment.Publisher = LogPublisher{}

// LogPublisher writes events to the request logger instead of a broker.
type LogPublisher struct{}

// PublishStatusChanged implements payment.Publisher.
func (LogPublisher) PublishStatusChanged(ctx context.Context, e payment.StatusChanged) error {
	zctx.From(ctx).Debug("Payment status changed",
		zap.String("payment_id", e.PaymentID),
		zap.String("order_id", e.OrderID),
		zap.Stringer("to", e.Change.Status),
		zap.String("reference", e.Change.Reference),
	)
	return nil
}
