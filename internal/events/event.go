// Package events publishes domain events to a message broker.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/oklog/ulid/v2"

	"github.com/xenking/ecomify/internal/domain/payment"
)

// TypePaymentStatusChanged is the event type of payment.StatusChanged.
const TypePaymentStatusChanged = "payment.status_changed"

// Envelope is the decoded form of a published event.
type Envelope struct {
	ID         string
	Type       string
	OccurredAt time.Time
	PaymentID  string
	OrderID    string
	Method     string
	From       string
	To         string
	Reference  string
}

// EncodeStatusChanged renders e as a JSON event with a fresh ULID.
func EncodeStatusChanged(e payment.StatusChanged) (id string, data []byte) {
	id = ulid.Make().String()

	var from string
	if e.From != 0 {
		from = e.From.String()
	}

	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("id", func(enc *jx.Encoder) { enc.Str(id) })
		enc.Field("type", func(enc *jx.Encoder) { enc.Str(TypePaymentStatusChanged) })
		enc.Field("occurred_at", func(enc *jx.Encoder) { enc.Str(e.Change.Timestamp.UTC().Format(time.RFC3339Nano)) })
		enc.Field("payment_id", func(enc *jx.Encoder) { enc.Str(e.PaymentID) })
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Str(e.OrderID) })
		enc.Field("method", func(enc *jx.Encoder) { enc.Str(e.Method.String()) })
		if from != "" {
			enc.Field("from", func(enc *jx.Encoder) { enc.Str(from) })
		}
		enc.Field("to", func(enc *jx.Encoder) { enc.Str(e.Change.Status.String()) })
		enc.Field("reference", func(enc *jx.Encoder) { enc.Str(e.Change.Reference) })
	})
	return id, enc.Bytes()
}

// Decode parses an event produced by EncodeStatusChanged. Unknown fields are
// skipped.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "occurred_at" {
			s, err := d.Str()
			if err != nil {
				return err
			}
			env.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
			return err
		}
		var dst *string
		switch key {
		case "id":
			dst = &env.ID
		case "type":
			dst = &env.Type
		case "payment_id":
			dst = &env.PaymentID
		case "order_id":
			dst = &env.OrderID
		case "method":
			dst = &env.Method
		case "from":
			dst = &env.From
		case "to":
			dst = &env.To
		case "reference":
			dst = &env.Reference
		default:
			return d.Skip()
		}
		s, err := d.Str()
		*dst = s
		return err
	})
	if err != nil {
		return Envelope{}, errors.Wrap(err, "decode event")
	}
	return env, nil
}
